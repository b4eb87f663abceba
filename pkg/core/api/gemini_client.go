// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// retryBackoff is the wait before the n-th retry (n starting at 1).
var retryBackoff = func(n int) time.Duration {
	return time.Duration(n) * 500 * time.Millisecond
}

// newGenAIClient builds a Gemini API client. baseURL is only set for tests
// and proxies.
func newGenAIClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	if timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// GeminiChatModel implements ChatModel with the Google Gen AI SDK.
type GeminiChatModel struct {
	client *genai.Client
	cfg    ChatModelConfig
}

// NewGeminiChatModel creates a Gemini chat model client.
func NewGeminiChatModel(ctx context.Context, apiKey, baseURL string, cfg ChatModelConfig) (*GeminiChatModel, error) {
	client, err := newGenAIClient(ctx, apiKey, baseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &GeminiChatModel{client: client, cfg: cfg}, nil
}

func (m *GeminiChatModel) generateConfig() *genai.GenerateContentConfig {
	temp := float32(m.cfg.Temperature)
	gc := &genai.GenerateContentConfig{Temperature: &temp}
	if m.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(m.cfg.MaxTokens)
	}
	return gc
}

// Stream implements ChatModel. Failures before the first token are retried
// up to MaxRetries times; once text has been sent an error ends the stream.
func (m *GeminiChatModel) Stream(ctx context.Context, prompt string) (<-chan Delta, error) {
	contents := genai.Text(prompt)

	if m.cfg.DisableStreaming {
		var (
			resp *genai.GenerateContentResponse
			err  error
		)
		for attempt := 0; ; attempt++ {
			resp, err = m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, m.generateConfig())
			if err == nil || attempt >= m.cfg.MaxRetries || !sleepCtx(ctx, retryBackoff(attempt+1)) {
				break
			}
		}
		if err != nil {
			return failed(fmt.Errorf("generate content failed: %w", err)), nil
		}
		return single(responseText(resp)), nil
	}

	out := make(chan Delta, 10)

	go func() {
		defer close(out)

		for attempt := 0; ; attempt++ {
			sent := false
			var streamErr error

			for resp, err := range m.client.Models.GenerateContentStream(ctx, m.cfg.Model, contents, m.generateConfig()) {
				if err != nil {
					streamErr = err
					break
				}
				text := responseText(resp)
				if text == "" {
					continue
				}
				sent = true
				select {
				case out <- Delta{Content: text}:
				case <-ctx.Done():
					return
				}
			}

			if streamErr == nil {
				return
			}
			if sent || attempt >= m.cfg.MaxRetries || !sleepCtx(ctx, retryBackoff(attempt+1)) {
				select {
				case out <- Delta{Err: fmt.Errorf("generate content stream failed: %w", streamErr)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out, nil
}

// responseText concatenates the text parts of the first candidate, skipping
// thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
