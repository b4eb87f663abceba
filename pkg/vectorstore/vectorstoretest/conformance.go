// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package vectorstoretest provides a conformance test suite for
// vectorstore.Backend implementations.
package vectorstoretest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leseb/docchat-gw/pkg/vectorstore"
)

// RunConformanceTests runs the standard conformance test suite against a
// vectorstore.Backend. The newBackend function must return a fresh, empty
// backend for each subtest. Namespaces are made unique per subtest so the
// suite can also run against shared servers.
func RunConformanceTests(t *testing.T, newBackend func(t *testing.T) vectorstore.Backend) {
	t.Helper()

	ctx := context.Background()

	t.Run("EnsureAndHasNamespace", func(t *testing.T) {
		b := newBackend(t)
		ns := uniqueNamespace(t)

		ok, err := b.HasNamespace(ctx, ns)
		if err != nil {
			t.Fatalf("HasNamespace: %v", err)
		}
		if ok {
			t.Fatal("namespace should not exist yet")
		}

		if err := b.EnsureNamespace(ctx, ns, 3); err != nil {
			t.Fatalf("EnsureNamespace: %v", err)
		}
		// Idempotent
		if err := b.EnsureNamespace(ctx, ns, 3); err != nil {
			t.Fatalf("second EnsureNamespace: %v", err)
		}

		ok, err = b.HasNamespace(ctx, ns)
		if err != nil {
			t.Fatalf("HasNamespace: %v", err)
		}
		if !ok {
			t.Fatal("namespace should exist")
		}
	})

	t.Run("QueryOrdersByScore", func(t *testing.T) {
		b := newBackend(t)
		ns := uniqueNamespace(t)
		mustEnsure(t, b, ns)

		records := []vectorstore.Record{
			{ID: "rect0", Text: "x axis", Vector: []float32{1, 0, 0}, Metadata: map[string]string{"page": "1"}},
			{ID: "rect1", Text: "y axis", Vector: []float32{0, 1, 0}, Metadata: map[string]string{"page": "2"}},
			{ID: "rect2", Text: "mostly x", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]string{"page": "3"}},
		}
		if err := b.Upsert(ctx, ns, records); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		matches, err := b.Query(ctx, ns, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		if matches[0].ID != "rect0" || matches[1].ID != "rect2" {
			t.Errorf("unexpected order: %s, %s", matches[0].ID, matches[1].ID)
		}
		if matches[0].Text != "x axis" {
			t.Errorf("Text = %q, want %q", matches[0].Text, "x axis")
		}
		if matches[0].Score < matches[1].Score {
			t.Errorf("scores not descending: %f < %f", matches[0].Score, matches[1].Score)
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		b := newBackend(t)
		ns := uniqueNamespace(t)
		mustEnsure(t, b, ns)

		if err := b.Upsert(ctx, ns, []vectorstore.Record{{ID: "rect0", Text: "old", Vector: []float32{1, 0, 0}}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if err := b.Upsert(ctx, ns, []vectorstore.Record{{ID: "rect0", Text: "new", Vector: []float32{1, 0, 0}}}); err != nil {
			t.Fatalf("second Upsert: %v", err)
		}

		matches, err := b.Query(ctx, ns, []float32{1, 0, 0}, 10)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected 1 match after replace, got %d", len(matches))
		}
		if matches[0].Text != "new" {
			t.Errorf("Text = %q, want new", matches[0].Text)
		}
	})

	t.Run("QueryMissingNamespace", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Query(ctx, uniqueNamespace(t), []float32{1, 0, 0}, 3)
		if !errors.Is(err, vectorstore.ErrNamespaceNotFound) {
			t.Fatalf("expected ErrNamespaceNotFound, got %v", err)
		}
	})

	t.Run("DeleteNamespace", func(t *testing.T) {
		b := newBackend(t)
		ns := uniqueNamespace(t)
		mustEnsure(t, b, ns)

		if err := b.DeleteNamespace(ctx, ns); err != nil {
			t.Fatalf("DeleteNamespace: %v", err)
		}
		ok, err := b.HasNamespace(ctx, ns)
		if err != nil {
			t.Fatalf("HasNamespace: %v", err)
		}
		if ok {
			t.Error("namespace should be gone")
		}
		// Deleting again is a no-op
		if err := b.DeleteNamespace(ctx, ns); err != nil {
			t.Fatalf("second DeleteNamespace: %v", err)
		}
	})
}

func mustEnsure(t *testing.T, b vectorstore.Backend, ns string) {
	t.Helper()
	if err := b.EnsureNamespace(context.Background(), ns, 3); err != nil {
		t.Fatalf("EnsureNamespace: %v", err)
	}
	t.Cleanup(func() { _ = b.DeleteNamespace(context.Background(), ns) })
}

func uniqueNamespace(t *testing.T) string {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	return fmt.Sprintf("chat-with-your-document-workspace:%s-%d", name, time.Now().UnixNano())
}
