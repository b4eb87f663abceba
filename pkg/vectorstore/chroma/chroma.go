// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package chroma implements vectorstore.Backend over the Chroma v2 REST API,
// one collection per namespace. Embeddings are computed by the caller.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leseb/docchat-gw/pkg/provider"
	"github.com/leseb/docchat-gw/pkg/vectorstore"
)

const (
	defaultTenant   = "default_tenant"
	defaultDatabase = "default_database"
	maxNameLength   = 512
)

var errCollectionNotFound = errors.New("collection not found")

func init() {
	vectorstore.Providers.Register("chroma", func(_ context.Context, params map[string]string) (vectorstore.Backend, error) {
		p := provider.Params(params)
		if err := p.Require("url"); err != nil {
			return nil, err
		}
		return New(Config{
			URL:      p.Get("url", ""),
			Tenant:   p.Get("tenant", ""),
			Database: p.Get("database", ""),
			APIKey:   p.Get("api_key", ""),
		}), nil
	})
}

// Config configures the Chroma client.
type Config struct {
	URL      string // e.g. "http://localhost:8000"
	Tenant   string
	Database string
	APIKey   string // sent as x-chroma-token when set
	Timeout  time.Duration
}

// Backend is a minimal REST client to Chroma.
type Backend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New returns a Backend. No request is made until the first call.
func New(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = defaultTenant
	}
	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	return &Backend{
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections",
			strings.TrimRight(cfg.URL, "/"), url.PathEscape(tenant), url.PathEscape(database)),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// collectionName maps a namespace onto Chroma's naming rules: 3-512
// characters from [a-zA-Z0-9._-], starting and ending with an alphanumeric.
// A hash suffix is added whenever characters had to be replaced.
func collectionName(namespace string) string {
	var sb strings.Builder
	changed := false
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
			changed = true
		}
	}
	name := strings.Trim(sb.String(), "-_")
	if name != sb.String() || len(name) < 3 || len(name) > maxNameLength {
		changed = true
	}
	if !changed {
		return name
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(namespace))
	suffix := fmt.Sprintf("%08x", h.Sum32())
	if len(name) > maxNameLength-len(suffix)-1 {
		name = strings.TrimRight(name[:maxNameLength-len(suffix)-1], "-_")
	}
	if name == "" {
		return "ns-" + suffix
	}
	return name + "-" + suffix
}

type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureNamespace creates the collection with cosine distance if missing.
func (b *Backend) EnsureNamespace(ctx context.Context, namespace string, dimensions int) error {
	body := map[string]any{
		"name":          collectionName(namespace),
		"get_or_create": true,
		"metadata": map[string]any{
			"hnsw:space": "cosine",
			"namespace":  namespace,
			"dimensions": dimensions,
		},
	}
	var coll collection
	if err := b.do(ctx, http.MethodPost, b.baseURL, body, &coll); err != nil {
		return fmt.Errorf("chroma create collection for %s: %w", namespace, err)
	}
	return nil
}

// lookup returns the collection ID of a namespace.
func (b *Backend) lookup(ctx context.Context, namespace string) (string, error) {
	var coll collection
	err := b.do(ctx, http.MethodGet, b.baseURL+"/"+url.PathEscape(collectionName(namespace)), nil, &coll)
	if err != nil {
		return "", err
	}
	return coll.ID, nil
}

// HasNamespace reports whether the namespace's collection exists.
func (b *Backend) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	_, err := b.lookup(ctx, namespace)
	switch {
	case errors.Is(err, errCollectionNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("chroma get collection for %s: %w", namespace, err)
	}
	return true, nil
}

// Upsert implements vectorstore.Backend.
func (b *Backend) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	id, err := b.lookup(ctx, namespace)
	if errors.Is(err, errCollectionNotFound) {
		return fmt.Errorf("upsert into %s: %w", namespace, vectorstore.ErrNamespaceNotFound)
	}
	if err != nil {
		return fmt.Errorf("chroma get collection for %s: %w", namespace, err)
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Vector
		documents[i] = r.Text
		if len(r.Metadata) > 0 {
			metadatas[i] = r.Metadata
		}
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	if err := b.do(ctx, http.MethodPost, b.baseURL+"/"+url.PathEscape(id)+"/upsert", body, nil); err != nil {
		return fmt.Errorf("chroma upsert into %s: %w", namespace, err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query implements vectorstore.Backend. Chroma returns cosine distances,
// which are reported as 1 - distance.
func (b *Backend) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]vectorstore.Match, error) {
	id, err := b.lookup(ctx, namespace)
	if errors.Is(err, errCollectionNotFound) {
		return nil, fmt.Errorf("query %s: %w", namespace, vectorstore.ErrNamespaceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("chroma get collection for %s: %w", namespace, err)
	}
	if topK <= 0 {
		return nil, nil
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := b.do(ctx, http.MethodPost, b.baseURL+"/"+url.PathEscape(id)+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("chroma query %s: %w", namespace, err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	out := make([]vectorstore.Match, 0, len(resp.IDs[0]))
	for i, rid := range resp.IDs[0] {
		m := vectorstore.Match{ID: rid}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			m.Text = *resp.Documents[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Score = 1 - resp.Distances[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			m.Metadata = make(map[string]string, len(resp.Metadatas[0][i]))
			for k, v := range resp.Metadatas[0][i] {
				m.Metadata[k] = fmt.Sprint(v)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteNamespace implements vectorstore.Backend.
func (b *Backend) DeleteNamespace(ctx context.Context, namespace string) error {
	err := b.do(ctx, http.MethodDelete, b.baseURL+"/"+url.PathEscape(collectionName(namespace)), nil, nil)
	if err != nil && !errors.Is(err, errCollectionNotFound) {
		return fmt.Errorf("chroma delete collection for %s: %w", namespace, err)
	}
	return nil
}

// Close implements vectorstore.Backend.
func (b *Backend) Close(context.Context) error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *Backend) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("x-chroma-token", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Older servers report a missing collection as a 4xx/5xx with this text.
		if resp.StatusCode == http.StatusNotFound || strings.Contains(string(msg), "does not exist") {
			return errCollectionNotFound
		}
		return fmt.Errorf("chroma %s %s failed: %s: %s", method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
