// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package usage provides windowed counters for per-user quotas.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leseb/docchat-gw/pkg/provider"
)

// DefaultWindow is the length of a counting window.
const DefaultWindow = 30 * 24 * time.Hour

// Counter counts events per key within a fixed window. The first increment
// after a reset (or after the previous window lapsed) opens a new window;
// reads after the window return 0.
type Counter interface {
	Get(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// Providers is the registry of counter implementations. Factories read the
// "window" param as a Go duration.
var Providers = provider.NewRegistry[Counter]("usage")

func init() {
	Providers.Register("memory", func(_ context.Context, params map[string]string) (Counter, error) {
		window, err := WindowParam(params)
		if err != nil {
			return nil, err
		}
		return NewMemoryCounter(window), nil
	})
}

// WindowParam parses params["window"], defaulting to DefaultWindow.
func WindowParam(params map[string]string) (time.Duration, error) {
	d, err := provider.Params(params).Duration("window", DefaultWindow)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("usage window must be positive, got %s", d)
	}
	return d, nil
}

type memoryEntry struct {
	count   int64
	expires time.Time
}

// MemoryCounter is an in-process Counter.
type MemoryCounter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCounter creates a counter with the given window length.
func NewMemoryCounter(window time.Duration) *MemoryCounter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryCounter{
		window:  window,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return 0, nil
	}
	return e.count, nil
}

func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || !now.Before(e.expires) {
		e = memoryEntry{expires: now.Add(c.window)}
	}
	e.count++
	c.entries[key] = e
	return e.count, nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCounter) Close() error {
	return nil
}
