// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbeddingClient is an offline EmbeddingClient. Each lower-cased word is
// hashed into one of Dimensions buckets with a hash-derived sign, and the
// resulting vector is L2-normalised. Texts sharing words get high cosine
// similarity, which is enough for local runs and tests.
type HashEmbeddingClient struct {
	dimensions int
}

// NewHashEmbeddingClient creates a hashing embedder with the given width.
func NewHashEmbeddingClient(dimensions int) *HashEmbeddingClient {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbeddingClient{dimensions: dimensions}
}

// Dimensions implements EmbeddingClient.
func (c *HashEmbeddingClient) Dimensions() int { return c.dimensions }

// Embed implements EmbeddingClient.
func (c *HashEmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = c.embed(in)
	}
	return out, nil
}

func (c *HashEmbeddingClient) embed(text string) []float32 {
	vec := make([]float32, c.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(c.dimensions))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
