// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/storage"

	_ "modernc.org/sqlite"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{Question, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{Dollar, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{Dollar, "INSERT INTO t VALUES (?, ?, (SELECT x FROM u WHERE id = ?))", "INSERT INTO t VALUES ($1, $2, (SELECT x FROM u WHERE id = $3))"},
		{Dollar, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		s := &Store{dialect: tt.dialect}
		if got := s.rebind(tt.in); got != tt.want {
			t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	s, err := New(context.Background(), db, Question)
	if err != nil {
		db.Close()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddMessage_PositionIsUnique(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.CreateChat(ctx, &storage.Chat{ID: "chat_1", UserID: "u", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMessage(ctx, &storage.Message{ID: "msg_1", ChatID: "chat_1", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, created_at, position) VALUES ('msg_dup', 'chat_1', 0, 0)`)
	if err == nil {
		t.Fatal("expected duplicate (chat_id, position) to be rejected")
	}
}

func TestAddMessage_GivesUpWhenPositionKeepsLosing(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.CreateChat(ctx, &storage.Chat{ID: "chat_1", UserID: "u", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	// Every insert is silently dropped, as when a concurrent writer wins.
	if _, err := s.db.ExecContext(ctx,
		`CREATE TRIGGER drop_messages BEFORE INSERT ON messages BEGIN SELECT RAISE(IGNORE); END`); err != nil {
		t.Fatal(err)
	}

	err := s.AddMessage(ctx, &storage.Message{ID: "msg_1", ChatID: "chat_1", CreatedAt: now})
	if !errors.Is(err, errPositionTaken) {
		t.Fatalf("AddMessage error = %v, want errPositionTaken", err)
	}
}
