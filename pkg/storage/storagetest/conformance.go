// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package storagetest provides a shared conformance test suite for
// storage.Store implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/storage"
)

// RunConformanceTests exercises a Store implementation against the shared
// contract. newStore is called once per sub-test.
func RunConformanceTests(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	open := func(t *testing.T) storage.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("DocumentLifecycle", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		doc := &storage.Document{
			ID:        storage.NewID("doc"),
			UserID:    "user_1",
			Name:      "report.pdf",
			Key:       "file_1",
			Size:      1024,
			Type:      "application/pdf",
			Namespace: "ns:1",
			IndexName: "chat-with-document",
			IsActive:  true,
			Status:    "uploaded",
			CreatedAt: base,
		}
		if err := s.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		got, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if got.UserID != doc.UserID || got.Name != doc.Name || got.Key != doc.Key || got.Size != doc.Size ||
			got.Type != doc.Type || got.Namespace != doc.Namespace || got.IndexName != doc.IndexName ||
			!got.IsActive || got.Status != "uploaded" || !got.CreatedAt.Equal(doc.CreatedAt) {
			t.Errorf("GetDocument = %+v, want %+v", got, doc)
		}

		got.IsActive = false
		got.Name = "renamed.pdf"
		got.Status = "processed"
		if err := s.UpdateDocument(ctx, got); err != nil {
			t.Fatalf("UpdateDocument: %v", err)
		}
		again, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocument after update: %v", err)
		}
		if again.IsActive || again.Name != "renamed.pdf" || again.Status != "processed" {
			t.Errorf("update not persisted: %+v", again)
		}

		if err := s.DeleteDocument(ctx, doc.ID); err != nil {
			t.Fatalf("DeleteDocument: %v", err)
		}
		if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetDocument after delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DocumentNotFound", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if _, err := s.GetDocument(ctx, "doc_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetDocument: expected ErrNotFound, got %v", err)
		}
		if err := s.UpdateDocument(ctx, &storage.Document{ID: "doc_missing"}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("UpdateDocument: expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteDocument(ctx, "doc_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeleteDocument: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAndCountDocuments", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		docs := []struct {
			id     string
			user   string
			active bool
		}{
			{"doc_a", "user_1", true},
			{"doc_b", "user_1", false},
			{"doc_c", "user_1", true},
			{"doc_d", "user_2", true},
		}
		for i, d := range docs {
			err := s.CreateDocument(ctx, &storage.Document{
				ID: d.id, UserID: d.user, IsActive: d.active,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("CreateDocument %s: %v", d.id, err)
			}
		}

		list, err := s.ListDocuments(ctx, "user_1")
		if err != nil {
			t.Fatalf("ListDocuments: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("ListDocuments returned %d, want 3", len(list))
		}
		if list[0].ID != "doc_c" || list[2].ID != "doc_a" {
			t.Errorf("ListDocuments order = %s,%s,%s; want newest first", list[0].ID, list[1].ID, list[2].ID)
		}

		n, err := s.CountActiveDocuments(ctx, "user_1")
		if err != nil {
			t.Fatalf("CountActiveDocuments: %v", err)
		}
		if n != 2 {
			t.Errorf("CountActiveDocuments = %d, want 2", n)
		}

		if n, _ := s.CountActiveDocuments(ctx, "nobody"); n != 0 {
			t.Errorf("CountActiveDocuments(nobody) = %d", n)
		}
	})

	t.Run("ChatsOrderedByUpdate", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for i, id := range []string{"chat_a", "chat_b", "chat_c"} {
			at := base.Add(time.Duration(i) * time.Minute)
			if err := s.CreateChat(ctx, &storage.Chat{ID: id, UserID: "user_1", Title: id, CreatedAt: at, UpdatedAt: at}); err != nil {
				t.Fatalf("CreateChat: %v", err)
			}
		}
		if err := s.CreateChat(ctx, &storage.Chat{ID: "chat_other", UserID: "user_2", CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateChat: %v", err)
		}

		if err := s.TouchChat(ctx, "chat_a", base.Add(time.Hour)); err != nil {
			t.Fatalf("TouchChat: %v", err)
		}

		chats, err := s.ListChats(ctx, "user_1")
		if err != nil {
			t.Fatalf("ListChats: %v", err)
		}
		var order string
		for _, c := range chats {
			order += c.ID + " "
		}
		if order != "chat_a chat_c chat_b " {
			t.Errorf("ListChats order = %q", order)
		}

		got, err := s.GetChat(ctx, "chat_a")
		if err != nil {
			t.Fatalf("GetChat: %v", err)
		}
		if !got.UpdatedAt.Equal(base.Add(time.Hour)) || !got.CreatedAt.Equal(base) {
			t.Errorf("GetChat timestamps = %s / %s", got.CreatedAt, got.UpdatedAt)
		}

		if _, err := s.GetChat(ctx, "chat_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetChat: expected ErrNotFound, got %v", err)
		}
		if err := s.TouchChat(ctx, "chat_missing", base); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("TouchChat: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MessagesKeepInsertionOrder", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateChat(ctx, &storage.Chat{ID: "chat_m", UserID: "user_1", CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateChat: %v", err)
		}

		// Same timestamp on purpose: ordering must not depend on it.
		for i := range 4 {
			msg := &storage.Message{
				ID:        fmt.Sprintf("msg_%d", 9-i),
				ChatID:    "chat_m",
				UserID:    "user_1",
				Text:      fmt.Sprintf("turn %d", i),
				IsUser:    i%2 == 0,
				CreatedAt: base,
			}
			if err := s.AddMessage(ctx, msg); err != nil {
				t.Fatalf("AddMessage: %v", err)
			}
		}

		msgs, err := s.ListMessages(ctx, "chat_m")
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		if len(msgs) != 4 {
			t.Fatalf("ListMessages returned %d, want 4", len(msgs))
		}
		for i, m := range msgs {
			if m.Text != fmt.Sprintf("turn %d", i) || m.IsUser != (i%2 == 0) {
				t.Errorf("message %d = %+v", i, m)
			}
		}

		if err := s.AddMessage(ctx, &storage.Message{ID: "msg_x", ChatID: "chat_missing", CreatedAt: base}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("AddMessage to missing chat: expected ErrNotFound, got %v", err)
		}
		if msgs, err := s.ListMessages(ctx, "chat_empty"); err != nil || len(msgs) != 0 {
			t.Errorf("ListMessages(empty) = %v, %v", msgs, err)
		}
	})

	t.Run("ConcurrentMessages", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateChat(ctx, &storage.Chat{ID: "chat_c", UserID: "user_1", CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateChat: %v", err)
		}

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.AddMessage(ctx, &storage.Message{
					ID:        fmt.Sprintf("msg_c%d", i),
					ChatID:    "chat_c",
					Text:      fmt.Sprintf("turn %d", i),
					CreatedAt: base,
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("AddMessage: %v", err)
			}
		}

		msgs, err := s.ListMessages(ctx, "chat_c")
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		seen := make(map[string]bool)
		for _, m := range msgs {
			seen[m.ID] = true
		}
		if len(msgs) != n || len(seen) != n {
			t.Errorf("ListMessages returned %d messages (%d distinct), want %d", len(msgs), len(seen), n)
		}
	})

	t.Run("UserUpsert", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if _, err := s.GetUser(ctx, "user_x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetUser: expected ErrNotFound, got %v", err)
		}

		if err := s.UpsertUser(ctx, &storage.User{ID: "user_x", Email: "x@example.com", Plan: storage.PlanFree}); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
		u, err := s.GetUser(ctx, "user_x")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.Email != "x@example.com" || u.Plan != storage.PlanFree || u.CurrentPeriodEnd != nil {
			t.Errorf("GetUser = %+v", u)
		}

		end := base.Add(30 * 24 * time.Hour)
		err = s.UpsertUser(ctx, &storage.User{
			ID: "user_x", Email: "x@example.com", Name: "X",
			Plan: storage.PlanStarter, SubscriptionStatus: storage.SubscriptionActive, CurrentPeriodEnd: &end,
		})
		if err != nil {
			t.Fatalf("UpsertUser (update): %v", err)
		}
		u, err = s.GetUser(ctx, "user_x")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.Plan != storage.PlanStarter || u.SubscriptionStatus != storage.SubscriptionActive || u.Name != "X" {
			t.Errorf("GetUser after update = %+v", u)
		}
		if u.CurrentPeriodEnd == nil || !u.CurrentPeriodEnd.Equal(end) {
			t.Errorf("CurrentPeriodEnd = %v, want %s", u.CurrentPeriodEnd, end)
		}
	})
}
