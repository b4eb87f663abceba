// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package api holds the clients for hosted chat and embedding models.
package api

import (
	"context"
	"strings"
	"time"
)

// Delta is one piece of a streamed answer. A Delta with Err set is always the
// last value sent before the channel closes.
type Delta struct {
	Content string
	Err     error
}

// ChatModel streams the answer to a fully rendered prompt.
type ChatModel interface {
	// Stream starts generation. The returned channel is closed when the
	// upstream stream ends; upstream failures arrive as a final Delta{Err}.
	Stream(ctx context.Context, prompt string) (<-chan Delta, error)
}

// ChatModelConfig holds the generation settings shared by all chat models.
type ChatModelConfig struct {
	Model            string
	Temperature      float64
	MaxTokens        int           // 0 leaves the provider default
	MaxRetries       int           // retries before the first token
	Timeout          time.Duration // per request, 0 disables
	DisableStreaming bool          // one blocking call, emitted as a single delta
}

// Collect drains a stream and returns the concatenated content. It stops at
// the first error and returns what was received so far with it.
func Collect(ch <-chan Delta) (string, error) {
	var sb strings.Builder
	for d := range ch {
		if d.Err != nil {
			return sb.String(), d.Err
		}
		sb.WriteString(d.Content)
	}
	return sb.String(), nil
}

// single wraps a complete answer as a one-delta stream.
func single(content string) <-chan Delta {
	out := make(chan Delta, 1)
	if content != "" {
		out <- Delta{Content: content}
	}
	close(out)
	return out
}

// failed reports err as a one-delta stream, the same way a mid-stream
// failure is reported.
func failed(err error) <-chan Delta {
	out := make(chan Delta, 1)
	out <- Delta{Err: err}
	close(out)
	return out
}
