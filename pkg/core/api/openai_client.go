// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIChatModel implements ChatModel using the official OpenAI Go SDK.
// Supports OpenAI, Ollama, vLLM, and other OpenAI-compatible backends.
type OpenAIChatModel struct {
	client openai.Client
	cfg    ChatModelConfig
}

// NewOpenAIChatModel creates a chat model client. The baseURL parameter allows
// connecting to OpenAI-compatible backends like Ollama and vLLM.
func NewOpenAIChatModel(baseURL, apiKey string, cfg ChatModelConfig) *OpenAIChatModel {
	opts := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	// Local backends like Ollama don't require authentication
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("dummy"))
	}

	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIChatModel{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (m *OpenAIChatModel) params(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(m.cfg.Temperature),
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.cfg.MaxTokens))
	}
	return params
}

// Stream implements ChatModel.
func (m *OpenAIChatModel) Stream(ctx context.Context, prompt string) (<-chan Delta, error) {
	params := m.params(prompt)

	if m.cfg.DisableStreaming {
		completion, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return failed(fmt.Errorf("chat completion failed: %w", err)), nil
		}
		if len(completion.Choices) == 0 {
			return single(""), nil
		}
		return single(completion.Choices[0].Message.Content), nil
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan Delta, 10)

	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case out <- Delta{Content: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case out <- Delta{Err: fmt.Errorf("chat completion stream failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
