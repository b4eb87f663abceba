// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package milvus implements vectorstore.Backend on Milvus, one collection per
// namespace.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/leseb/docchat-gw/pkg/provider"
	"github.com/leseb/docchat-gw/pkg/vectorstore"
	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	fieldID        = "id"
	fieldText      = "text"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"

	maxTextLength     = 65535
	maxIDLength       = 256
	maxMetadataLength = 4096
	maxNameLength     = 255
)

func init() {
	vectorstore.Providers.Register("milvus", func(ctx context.Context, params map[string]string) (vectorstore.Backend, error) {
		p := provider.Params(params)
		return NewBackend(ctx, p.Get("address", "localhost:19530"))
	})
}

// Backend implements vectorstore.Backend using Milvus.
type Backend struct {
	client milvusclient.Client
}

// NewBackend connects to Milvus and returns a Backend.
func NewBackend(ctx context.Context, address string) (*Backend, error) {
	c, err := milvusclient.NewClient(ctx, milvusclient.Config{
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus connect %s: %w", address, err)
	}
	return &Backend{client: c}, nil
}

// collectionName derives a Milvus collection name from a namespace.
// Milvus names allow only letters, digits and underscores and must not
// start with a digit, so names carry an "ns_" prefix. When characters had to
// be replaced a hash of the namespace is appended to keep names distinct.
func collectionName(namespace string) string {
	var sb strings.Builder
	sb.WriteString("ns_")
	changed := false
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
			changed = true
		}
	}
	name := sb.String()

	if !changed && len(name) <= maxNameLength {
		return name
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(namespace))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	if len(name) > maxNameLength-len(suffix) {
		name = name[:maxNameLength-len(suffix)]
	}
	return name + suffix
}

// EnsureNamespace creates the collection, an HNSW index, and loads it.
func (b *Backend) EnsureNamespace(ctx context.Context, namespace string, dimensions int) error {
	coll := collectionName(namespace)

	exists, err := b.client.HasCollection(ctx, coll)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", coll, err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(coll).
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(maxIDLength)).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(fieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(maxTextLength))).
		WithField(entity.NewField().
			WithName(fieldMetadata).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(maxMetadataLength))).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimensions)))

	if err := b.client.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("create collection %s: %w", coll, err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("create HNSW index params: %w", err)
	}

	if err := b.client.CreateIndex(ctx, coll, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("create index on %s: %w", coll, err)
	}

	if err := b.client.LoadCollection(ctx, coll, false); err != nil {
		return fmt.Errorf("load collection %s: %w", coll, err)
	}

	return nil
}

// HasNamespace reports whether the namespace's collection exists.
func (b *Backend) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	coll := collectionName(namespace)
	exists, err := b.client.HasCollection(ctx, coll)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", coll, err)
	}
	return exists, nil
}

// DeleteNamespace drops the collection for the given namespace.
func (b *Backend) DeleteNamespace(ctx context.Context, namespace string) error {
	coll := collectionName(namespace)

	exists, err := b.client.HasCollection(ctx, coll)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", coll, err)
	}
	if !exists {
		return nil
	}

	if err := b.client.DropCollection(ctx, coll); err != nil {
		return fmt.Errorf("drop collection %s: %w", coll, err)
	}
	return nil
}

// Upsert writes records into the namespace's collection, replacing rows with
// the same primary key.
func (b *Backend) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	coll := collectionName(namespace)
	exists, err := b.client.HasCollection(ctx, coll)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", coll, err)
	}
	if !exists {
		return fmt.Errorf("upsert into %s: %w", namespace, vectorstore.ErrNamespaceNotFound)
	}

	ids := make([]string, len(records))
	texts := make([]string, len(records))
	metas := make([]string, len(records))
	vectors := make([][]float32, len(records))

	for i, r := range records {
		ids[i] = r.ID
		texts[i] = truncate(r.Text, maxTextLength)
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		metas[i] = truncate(string(meta), maxMetadataLength)
		vectors[i] = r.Vector
	}

	dim := len(vectors[0])
	_, err = b.client.Upsert(ctx, coll, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldMetadata, metas),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", coll, err)
	}

	if err := b.client.Flush(ctx, coll, false); err != nil {
		return fmt.Errorf("flush %s: %w", coll, err)
	}

	return nil
}

// Query performs a vector similarity search in the given namespace.
func (b *Backend) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]vectorstore.Match, error) {
	coll := collectionName(namespace)

	exists, err := b.client.HasCollection(ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", coll, err)
	}
	if !exists {
		return nil, fmt.Errorf("query %s: %w", namespace, vectorstore.ErrNamespaceNotFound)
	}
	if topK <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("create search params: %w", err)
	}

	results, err := b.client.Search(
		ctx,
		coll,
		nil,
		"",
		[]string{fieldID, fieldText, fieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", coll, err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	sr := results[0]
	if sr.Err != nil {
		return nil, fmt.Errorf("search result error: %w", sr.Err)
	}

	idCol := sr.Fields.GetColumn(fieldID)
	textCol := sr.Fields.GetColumn(fieldText)
	metaCol := sr.Fields.GetColumn(fieldMetadata)

	out := make([]vectorstore.Match, 0, sr.ResultCount)
	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		text, _ := textCol.GetAsString(i)
		rawMeta, _ := metaCol.GetAsString(i)

		var meta map[string]string
		_ = json.Unmarshal([]byte(rawMeta), &meta)

		out = append(out, vectorstore.Match{
			ID:       id,
			Text:     text,
			Score:    float64(sr.Scores[i]),
			Metadata: meta,
		})
	}

	return out, nil
}

// Close releases the Milvus client connection.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Close()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
