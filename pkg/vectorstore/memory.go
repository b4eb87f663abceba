// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type memoryNamespace struct {
	dimensions int
	records    map[string]Record
}

// MemoryBackend is an in-process Backend doing exact cosine search.
// It is safe for concurrent use.
type MemoryBackend struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
}

// NewMemoryBackend creates a new memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{namespaces: make(map[string]*memoryNamespace)}
}

func (m *MemoryBackend) EnsureNamespace(_ context.Context, namespace string, dimensions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ns, ok := m.namespaces[namespace]; ok {
		if ns.dimensions != dimensions {
			return fmt.Errorf("namespace %s has %d dimensions, not %d", namespace, ns.dimensions, dimensions)
		}
		return nil
	}
	m.namespaces[namespace] = &memoryNamespace{
		dimensions: dimensions,
		records:    make(map[string]Record),
	}
	return nil
}

func (m *MemoryBackend) HasNamespace(_ context.Context, namespace string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[namespace]
	return ok, nil
}

func (m *MemoryBackend) Upsert(_ context.Context, namespace string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		return fmt.Errorf("upsert into %s: %w", namespace, ErrNamespaceNotFound)
	}
	for _, r := range records {
		if len(r.Vector) != ns.dimensions {
			return fmt.Errorf("record %s has %d dimensions, namespace expects %d", r.ID, len(r.Vector), ns.dimensions)
		}
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		ns.records[r.ID] = r
	}
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil, fmt.Errorf("query %s: %w", namespace, ErrNamespaceNotFound)
	}
	if topK <= 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(ns.records))
	for _, r := range ns.records {
		matches = append(matches, Match{
			ID:       r.ID,
			Text:     r.Text,
			Score:    cosineSimilarity(vector, r.Vector),
			Metadata: r.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryBackend) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *MemoryBackend) Close(context.Context) error {
	return nil
}

// cosineSimilarity returns 0 when either vector has zero length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
