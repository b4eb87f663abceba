// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider lets backend packages register constructors by name.
//
// The vector store, file store, storage and usage packages each own a
// Registry. Implementations call Register from init(), so a blank import of
// the implementation package is enough to make its name selectable from
// configuration.
package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Factory builds a backend from its settings. See Params for typed access.
type Factory[T any] func(ctx context.Context, params map[string]string) (T, error)

// Registry maps backend names to factories for one backend interface.
type Registry[T any] struct {
	subsystem string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates an empty Registry. The subsystem names the
// configuration section in error messages, e.g. "vector_store".
func NewRegistry[T any](subsystem string) *Registry[T] {
	return &Registry[T]{
		subsystem: subsystem,
		factories: make(map[string]Factory[T]),
	}
}

// Register adds a factory. Registering a name twice panics.
func (r *Registry[T]) Register(name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("provider: %s backend %q registered twice", r.subsystem, name))
	}
	r.factories[name] = f
}

// New builds the backend registered under name. Factory errors are wrapped
// with the subsystem and backend name.
func (r *Registry[T]) New(ctx context.Context, name string, params map[string]string) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	var zero T
	if !ok {
		return zero, fmt.Errorf("unknown %s provider: %q (available: %v)", r.subsystem, name, r.Available())
	}
	b, err := f(ctx, params)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", r.subsystem, name, err)
	}
	return b, nil
}

// Available returns the registered names in sorted order.
func (r *Registry[T]) Available() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
