// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// ErrFetchFailed wraps every failure to retrieve a remote document.
var ErrFetchFailed = errors.New("fetch failed")

// Download is a fetched document.
type Download struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Fetch downloads rawURL. Non-2xx responses are errors carrying the status;
// bodies over maxBytes (when positive) yield ErrTooLarge.
func Fetch(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) (*Download, error) {
	if client == nil {
		client = http.DefaultClient
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid document URL %q", ErrFetchFailed, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetchFailed, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s returned %s", ErrFetchFailed, u.Redacted(), resp.Status)
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, resp.ContentLength, maxBytes)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds limit of %d bytes", ErrTooLarge, maxBytes)
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = ""
	}

	return &Download{
		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filename,
	}, nil
}
