// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists documents, chats, messages and users.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leseb/docchat-gw/pkg/provider"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// Providers is the registry of storage backend implementations.
// Import implementation packages with blank imports to register them:
//
//	import _ "github.com/leseb/docchat-gw/pkg/storage/memory"
//	import _ "github.com/leseb/docchat-gw/pkg/storage/sqlite"
//	import _ "github.com/leseb/docchat-gw/pkg/storage/postgres"
var Providers = provider.NewRegistry[Store]("storage")

// Subscription plans.
const (
	PlanFree    = "FREE"
	PlanStarter = "STARTER"
	PlanPremium = "PREMIUM"
)

// SubscriptionActive is the only subscription status that grants a paid plan.
const SubscriptionActive = "ACTIVE"

// Document is an uploaded or ingested document owned by a user.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Key       string    `json:"key"` // file store ID
	Size      int64     `json:"size"`
	Type      string    `json:"type"`
	Namespace string    `json:"namespace"`
	IndexName string    `json:"indexName"`
	IsActive  bool      `json:"isActive"`
	Status    string    `json:"status"` // ingestion state, see filestore.Status*
	CreatedAt time.Time `json:"createdAt"`
}

// Chat is a conversation thread.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn of a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	CreatedAt time.Time `json:"createdAt"`
}

// User carries the subscription state used for quota decisions.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email,omitempty"`
	Name               string     `json:"name,omitempty"`
	Plan               string     `json:"plan"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
}

// Store is the persistence interface. Get methods return an error wrapping
// ErrNotFound for unknown IDs.
type Store interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id string) error
	// ListDocuments returns the user's documents, newest first.
	ListDocuments(ctx context.Context, userID string) ([]*Document, error)
	CountActiveDocuments(ctx context.Context, userID string) (int, error)

	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	// ListChats returns the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]*Chat, error)
	TouchChat(ctx context.Context, id string, at time.Time) error

	// AddMessage appends a message; ListMessages returns them in the order
	// they were added.
	AddMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)

	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, user *User) error

	Close() error
}

// NewID returns a random identifier with the given prefix, e.g. "doc_<uuid>".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
