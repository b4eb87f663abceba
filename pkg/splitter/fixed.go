// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package splitter

// Fixed window defaults, used when a FixedSplitter is built with
// out-of-range values.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200
)

// FixedSplitter cuts text into windows of ChunkSize runes that overlap by
// ChunkOverlap runes, ignoring any structure in the text.
type FixedSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// SplitText implements Splitter.
func (s *FixedSplitter) SplitText(text string) []string {
	return ChunkText(text, s.ChunkSize, s.ChunkOverlap)
}

// ChunkText splits text into fixed-size chunks with configurable overlap.
// chunkSize and overlap are in runes. If chunkSize <= 0, DefaultChunkSize is used.
// If overlap < 0 or >= chunkSize, DefaultChunkOverlap is used (clamped to < chunkSize).
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := chunkSize - overlap
	if step <= 0 {
		step = 1
	}

	for start := 0; start < len(runes); start += step {
		end := min(start+chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
