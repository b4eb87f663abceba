// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package vectorstore defines the namespaced vector index used for document
// retrieval and its pluggable backends.
package vectorstore

import (
	"context"
	"errors"

	"github.com/leseb/docchat-gw/pkg/provider"
)

// ErrNamespaceNotFound is returned when querying or writing a namespace that
// was never created.
var ErrNamespaceNotFound = errors.New("namespace not found")

// Providers is the registry of vector store backend implementations.
// Import implementation packages with blank imports to register them:
//
//	import _ "github.com/leseb/docchat-gw/pkg/vectorstore/milvus"
var Providers = provider.NewRegistry[Backend]("vector_store")

func init() {
	Providers.Register("memory", func(_ context.Context, _ map[string]string) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

// Record is an embedded chunk ready for insertion.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Match is a single result of a similarity query.
type Match struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// Backend is the interface for vector store storage backends. A namespace
// isolates the chunks of one document.
type Backend interface {
	// EnsureNamespace provisions the namespace if it does not exist yet.
	EnsureNamespace(ctx context.Context, namespace string, dimensions int) error

	// HasNamespace reports whether the namespace exists.
	HasNamespace(ctx context.Context, namespace string) (bool, error)

	// Upsert inserts records, replacing any record with the same ID.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns at most topK matches ordered by descending score.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// DeleteNamespace removes the namespace and all its records. Deleting a
	// missing namespace is not an error.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases any resources held by the backend.
	Close(ctx context.Context) error
}
