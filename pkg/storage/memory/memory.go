// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is a process-local storage.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leseb/docchat-gw/pkg/storage"
)

func init() {
	storage.Providers.Register("memory", func(_ context.Context, _ map[string]string) (storage.Store, error) {
		return New(), nil
	})
}

// compile-time check
var _ storage.Store = (*Store)(nil)

// Store is an in-memory implementation of storage.Store. Values are copied
// on the way in and out.
type Store struct {
	mu        sync.RWMutex
	documents map[string]storage.Document
	chats     map[string]storage.Chat
	messages  map[string][]storage.Message // by chat ID, insertion order
	users     map[string]storage.User
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		documents: make(map[string]storage.Document),
		chats:     make(map[string]storage.Chat),
		messages:  make(map[string][]storage.Message),
		users:     make(map[string]storage.User),
	}
}

func (s *Store) CreateDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.documents[doc.ID] = *doc
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return &doc, nil
}

func (s *Store) UpdateDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; !ok {
		return fmt.Errorf("document %s: %w", doc.ID, storage.ErrNotFound)
	}
	s.documents[doc.ID] = *doc
	return nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	delete(s.documents, id)
	return nil
}

func (s *Store) ListDocuments(_ context.Context, userID string) ([]*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Document
	for _, doc := range s.documents {
		if doc.UserID == userID {
			d := doc
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountActiveDocuments(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, doc := range s.documents {
		if doc.UserID == userID && doc.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateChat(_ context.Context, chat *storage.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[chat.ID]; exists {
		return fmt.Errorf("chat %s already exists", chat.ID)
	}
	s.chats[chat.ID] = *chat
	return nil
}

func (s *Store) GetChat(_ context.Context, id string) (*storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", id, storage.ErrNotFound)
	}
	return &chat, nil
}

func (s *Store) ListChats(_ context.Context, userID string) ([]*storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			c := chat
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) TouchChat(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return fmt.Errorf("chat %s: %w", id, storage.ErrNotFound)
	}
	chat.UpdatedAt = at
	s.chats[id] = chat
	return nil
}

// AddMessage appends msg to its chat. The chat must exist.
func (s *Store) AddMessage(_ context.Context, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return fmt.Errorf("chat %s: %w", msg.ChatID, storage.ErrNotFound)
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], *msg)
	return nil
}

func (s *Store) ListMessages(_ context.Context, chatID string) ([]*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	out := make([]*storage.Message, len(msgs))
	for i := range msgs {
		m := msgs[i]
		out[i] = &m
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if user.CurrentPeriodEnd != nil {
		end := *user.CurrentPeriodEnd
		user.CurrentPeriodEnd = &end
	}
	return &user, nil
}

func (s *Store) UpsertUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	if u.CurrentPeriodEnd != nil {
		end := *u.CurrentPeriodEnd
		u.CurrentPeriodEnd = &end
	}
	s.users[u.ID] = u
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
