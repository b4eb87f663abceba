// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader turns downloaded or uploaded bytes into text pages.
package loader

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedContent is returned for content that has no text extractor.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrTooLarge is returned when a download exceeds the configured limit.
	ErrTooLarge = errors.New("content too large")
)

// Page is the text of one page (or the whole of a single-page document).
type Page struct {
	Number     int // 1-based
	TotalPages int
	Text       string
	Source     string
}

// Kind is the detected document format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindHTML Kind = "html"
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
	KindText Kind = "text"
)

// Detect classifies content by extension, then declared content type, then
// by sniffing the bytes.
func Detect(content []byte, filename, contentType string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".html", ".htm":
		return KindHTML, nil
	case ".csv":
		return KindCSV, nil
	case ".json", ".jsonl":
		return KindJSON, nil
	case ".txt", ".md", ".markdown", ".text":
		return KindText, nil
	}

	if bytes.HasPrefix(content, []byte("%PDF-")) {
		return KindPDF, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if k, ok := kindForMediaType(mediaType); ok {
		return k, nil
	}

	if k, ok := kindForMediaType(baseMediaType(http.DetectContentType(content))); ok {
		return k, nil
	}
	return "", ErrUnsupportedContent
}

func kindForMediaType(mediaType string) (Kind, bool) {
	switch {
	case mediaType == "application/pdf":
		return KindPDF, true
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return KindHTML, true
	case mediaType == "text/csv":
		return KindCSV, true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return KindJSON, true
	case strings.HasPrefix(mediaType, "text/"):
		return KindText, true
	}
	return "", false
}

func baseMediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// Load extracts pages from content. PDFs yield one page per PDF page, other
// formats yield a single page. Source on every page is set to filename.
func Load(content []byte, filename, contentType string) ([]Page, error) {
	kind, err := Detect(content, filename, contentType)
	if err != nil {
		return nil, err
	}

	var texts []string
	switch kind {
	case KindPDF:
		texts, err = extractPDFPages(content)
	case KindHTML:
		texts, err = single(extractHTML(content))
	case KindCSV:
		texts, err = single(extractCSV(content))
	case KindJSON:
		if strings.EqualFold(filepath.Ext(filename), ".jsonl") {
			texts, err = single(extractJSONL(content))
		} else {
			texts, err = single(extractJSON(content))
		}
	default:
		texts, err = single(extractText(content))
	}
	if err != nil {
		return nil, err
	}

	pages := make([]Page, len(texts))
	for i, text := range texts {
		pages[i] = Page{
			Number:     i + 1,
			TotalPages: len(texts),
			Text:       text,
			Source:     filename,
		}
	}
	return pages, nil
}

func single(text string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}
