// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package splitter cuts page text into overlapping chunks for embedding.
package splitter

import (
	"fmt"
	"strings"

	"github.com/leseb/docchat-gw/pkg/loader"
)

// Splitter splits a text into chunks.
type Splitter interface {
	SplitText(text string) []string
}

// Document is a chunk of text with the metadata of the page it came from.
type Document struct {
	Content  string
	Metadata map[string]any
}

// Metadata keys copied from the source page.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
)

// New returns the splitter for a chunking strategy ("character" or "fixed").
func New(strategy, separator string, chunkSize, chunkOverlap int) (Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}

	switch strategy {
	case "", "character":
		return &CharacterSplitter{
			Separator:    separator,
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
		}, nil
	case "fixed":
		return &FixedSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}

// SplitDocuments splits every page and tags each chunk with the page's
// source, number and page count.
func SplitDocuments(s Splitter, pages []loader.Page) []Document {
	var docs []Document
	for _, p := range pages {
		for _, chunk := range s.SplitText(p.Text) {
			docs = append(docs, Document{
				Content: chunk,
				Metadata: map[string]any{
					MetaSource:     p.Source,
					MetaPage:       p.Number,
					MetaTotalPages: p.TotalPages,
				},
			})
		}
	}
	return docs
}

// RemoveNewlines deletes every newline from the document content.
func RemoveNewlines(doc Document) Document {
	doc.Content = strings.ReplaceAll(doc.Content, "\n", "")
	return doc
}
