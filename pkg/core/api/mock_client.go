// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockChatModel is a mock implementation for testing.
// It streams back "Mock response to: <prompt>" one word at a time.
type MockChatModel struct {
	// Delay between words.
	Delay time.Duration
	// Err, when set, is delivered after the words as the final delta.
	Err error
}

// NewMockChatModel creates a new mock chat model
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

// Stream implements ChatModel.
func (m *MockChatModel) Stream(ctx context.Context, prompt string) (<-chan Delta, error) {
	out := make(chan Delta, 10)

	go func() {
		defer close(out)

		words := strings.Fields(fmt.Sprintf("Mock response to: %s", prompt))
		for i, word := range words {
			if i < len(words)-1 {
				word += " "
			}
			select {
			case out <- Delta{Content: word}:
			case <-ctx.Done():
				return
			}
			if m.Delay > 0 {
				time.Sleep(m.Delay)
			}
		}

		if m.Err != nil {
			select {
			case out <- Delta{Err: m.Err}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
