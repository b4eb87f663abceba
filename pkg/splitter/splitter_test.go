// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package splitter

import (
	"testing"

	"github.com/leseb/docchat-gw/pkg/loader"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		size     int
		overlap  int
		wantErr  bool
		wantType string
	}{
		{"character default", "", 800, 300, false, "character"},
		{"fixed", "fixed", 100, 10, false, "fixed"},
		{"overlap too large", "character", 100, 100, true, ""},
		{"zero size", "character", 0, 0, true, ""},
		{"unknown", "semantic", 100, 10, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.strategy, "\n", tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			switch tt.wantType {
			case "character":
				if _, ok := s.(*CharacterSplitter); !ok {
					t.Errorf("expected *CharacterSplitter, got %T", s)
				}
			case "fixed":
				if _, ok := s.(*FixedSplitter); !ok {
					t.Errorf("expected *FixedSplitter, got %T", s)
				}
			}
		})
	}
}

func TestSplitDocuments(t *testing.T) {
	pages := []loader.Page{
		{Number: 1, TotalPages: 2, Text: "alpha\nbeta", Source: "doc.pdf"},
		{Number: 2, TotalPages: 2, Text: "", Source: "doc.pdf"},
	}
	s := &CharacterSplitter{Separator: "\n", ChunkSize: 5, ChunkOverlap: 0}

	docs := SplitDocuments(s, pages)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.Metadata[MetaPage] != 1 || d.Metadata[MetaTotalPages] != 2 || d.Metadata[MetaSource] != "doc.pdf" {
			t.Errorf("unexpected metadata %v", d.Metadata)
		}
	}
	if docs[0].Content != "alpha" || docs[1].Content != "beta" {
		t.Errorf("unexpected contents %q, %q", docs[0].Content, docs[1].Content)
	}
}

func TestRemoveNewlines(t *testing.T) {
	in := Document{Content: "a\nb\n\nc", Metadata: map[string]any{"k": "v"}}
	out := RemoveNewlines(in)
	if out.Content != "abc" {
		t.Errorf("Content = %q, want %q", out.Content, "abc")
	}
	if out.Metadata["k"] != "v" {
		t.Error("metadata should be preserved")
	}
}
