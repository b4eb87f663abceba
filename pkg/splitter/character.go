// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package splitter

import (
	"strings"
	"unicode/utf8"
)

// CharacterSplitter splits on a literal separator and greedily merges the
// pieces back into chunks of at most ChunkSize runes, carrying up to
// ChunkOverlap runes of trailing pieces into the next chunk.
//
// A single piece longer than ChunkSize is emitted on its own.
type CharacterSplitter struct {
	Separator    string
	ChunkSize    int
	ChunkOverlap int
}

// SplitText implements Splitter.
func (s *CharacterSplitter) SplitText(text string) []string {
	var pieces []string
	if s.Separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, p := range strings.Split(text, s.Separator) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}
	return s.merge(pieces)
}

func (s *CharacterSplitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.Separator)

	var (
		chunks  []string
		current []string
		total   int
	)

	// sep is the separator cost of appending to current.
	sep := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)

		if total+n+sep() > s.ChunkSize {
			if len(current) > 0 {
				if chunk := s.join(current); chunk != "" {
					chunks = append(chunks, chunk)
				}
				for total > s.ChunkOverlap || (total+n+sep() > s.ChunkSize && total > 0) {
					dropped := utf8.RuneCountInString(current[0])
					if len(current) > 1 {
						dropped += sepLen
					}
					total -= dropped
					current = current[1:]
				}
			}
		}

		current = append(current, piece)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if chunk := s.join(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (s *CharacterSplitter) join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, s.Separator))
}
