// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_Stream(t *testing.T) {
	ch, err := NewMockChatModel().Stream(context.Background(), "what is  Go?")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := Collect(ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if want := "Mock response to: what is Go?"; got != want {
		t.Errorf("answer = %q, want %q", got, want)
	}
}

func TestCollect_StopsAtError(t *testing.T) {
	boom := errors.New("boom")
	m := &MockChatModel{Err: boom}

	ch, err := m.Stream(context.Background(), "x")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := Collect(ch)
	if !errors.Is(err, boom) {
		t.Fatalf("Collect error = %v, want boom", err)
	}
	if got != "Mock response to: x" {
		t.Errorf("partial answer = %q", got)
	}
}

func TestMockChatModel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := NewMockChatModel().Stream(ctx, "a b c d e f g h i j k l m n o p")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	// Draining must terminate even though the consumer context is gone.
	for range ch {
	}
}
