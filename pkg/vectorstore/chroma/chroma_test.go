// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/leseb/docchat-gw/pkg/vectorstore"
	"github.com/leseb/docchat-gw/pkg/vectorstore/vectorstoretest"
)

// fakeChroma serves the subset of the Chroma v2 collections API the backend
// uses, with exact cosine distance.
type fakeChroma struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection // by name
	tokens      []string
}

type fakeCollection struct {
	id      string
	records map[string]fakeRecord
}

type fakeRecord struct {
	doc  string
	meta map[string]any
	vec  []float64
}

func newFakeChroma(t *testing.T) *httptest.Server {
	f := &fakeChroma{collections: make(map[string]*fakeCollection)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

const prefix = "/api/v2/tenants/default_tenant/databases/default_database/collections"

func (f *fakeChroma) byID(id string) *fakeCollection {
	for _, c := range f.collections {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("x-chroma-token"))

	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, "bad tenant path", http.StatusBadRequest)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c, ok := f.collections[body.Name]
		if !ok {
			c = &fakeCollection{id: fmt.Sprintf("id-%d", len(f.collections)+1), records: map[string]fakeRecord{}}
			f.collections[body.Name] = c
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": c.id, "name": body.Name})

	case len(parts) == 1 && r.Method == http.MethodGet:
		c, ok := f.collections[parts[0]]
		if !ok {
			http.Error(w, `{"error":"NotFoundError","message":"Collection does not exist"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": c.id, "name": parts[0]})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if _, ok := f.collections[parts[0]]; !ok {
			http.Error(w, `{"error":"NotFoundError"}`, http.StatusNotFound)
			return
		}
		delete(f.collections, parts[0])
		w.Write([]byte("{}"))

	case len(parts) == 2 && parts[1] == "upsert":
		c := f.byID(parts[0])
		if c == nil {
			http.Error(w, "no such collection", http.StatusNotFound)
			return
		}
		var body struct {
			IDs        []string         `json:"ids"`
			Embeddings [][]float64      `json:"embeddings"`
			Documents  []string         `json:"documents"`
			Metadatas  []map[string]any `json:"metadatas"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i, id := range body.IDs {
			c.records[id] = fakeRecord{doc: body.Documents[i], meta: body.Metadatas[i], vec: body.Embeddings[i]}
		}
		w.Write([]byte("{}"))

	case len(parts) == 2 && parts[1] == "query":
		c := f.byID(parts[0])
		if c == nil {
			http.Error(w, "no such collection", http.StatusNotFound)
			return
		}
		var body struct {
			QueryEmbeddings [][]float64 `json:"query_embeddings"`
			NResults        int         `json:"n_results"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type hit struct {
			id   string
			dist float64
		}
		var hits []hit
		for id, rec := range c.records {
			hits = append(hits, hit{id, 1 - cosine(body.QueryEmbeddings[0], rec.vec)})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
		if len(hits) > body.NResults {
			hits = hits[:body.NResults]
		}
		ids, docs, metas, dists := []string{}, []*string{}, []map[string]any{}, []float64{}
		for _, h := range hits {
			rec := c.records[h.id]
			doc := rec.doc
			ids = append(ids, h.id)
			docs = append(docs, &doc)
			metas = append(metas, rec.meta)
			dists = append(dists, h.dist)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{ids},
			"documents": [][]*string{docs},
			"metadatas": [][]map[string]any{metas},
			"distances": [][]float64{dists},
		})

	default:
		http.Error(w, "unexpected route "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestBackend_ConformanceAgainstFake(t *testing.T) {
	vectorstoretest.RunConformanceTests(t, func(t *testing.T) vectorstore.Backend {
		return New(Config{URL: newFakeChroma(t).URL})
	})
}

func TestBackend_MetadataAndToken(t *testing.T) {
	ctx := context.Background()
	f := &fakeChroma{collections: make(map[string]*fakeCollection)}
	srv := httptest.NewServer(f)
	defer srv.Close()

	b := New(Config{URL: srv.URL + "/", APIKey: "tok"})
	ns := "chat-with-your-document-workspace:doc-1"
	if err := b.EnsureNamespace(ctx, ns, 2); err != nil {
		t.Fatalf("EnsureNamespace: %v", err)
	}
	err := b.Upsert(ctx, ns, []vectorstore.Record{
		{ID: "rect0", Text: "hello", Vector: []float32{1, 0}, Metadata: map[string]string{"page": "3"}},
		{ID: "rect1", Text: "bye", Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := b.Query(ctx, ns, []float32{1, 0}, 8)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "rect0" || matches[0].Metadata["page"] != "3" {
		t.Errorf("unexpected first match %+v", matches[0])
	}
	if math.Abs(matches[0].Score-1) > 1e-6 {
		t.Errorf("score = %f, want 1 for identical vectors", matches[0].Score)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.tokens {
		if tok != "tok" {
			t.Fatalf("request sent with token %q", tok)
		}
	}
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,510}[A-Za-z0-9]$`)

func TestCollectionName(t *testing.T) {
	for _, ns := range []string{
		"chat-with-your-document-workspace:doc-1",
		"ab",
		"::",
		"plain_name",
		strings.Repeat("x", 600),
	} {
		got := collectionName(ns)
		if !validName.MatchString(got) {
			t.Errorf("collectionName(%q) = %q is not a valid Chroma name", ns, got)
		}
	}
	if got := collectionName("plain_name"); got != "plain_name" {
		t.Errorf("valid names should pass through, got %q", got)
	}
	if collectionName("a:bc") == collectionName("a-bc") {
		t.Error("sanitised names must not collide")
	}
}

func TestBackend_ConformanceLive(t *testing.T) {
	url := os.Getenv("CHROMA_URL")
	if url == "" {
		t.Skip("CHROMA_URL not set")
	}
	vectorstoretest.RunConformanceTests(t, func(t *testing.T) vectorstore.Backend {
		return New(Config{URL: url})
	})
}

func TestProviders_RequiresURL(t *testing.T) {
	_, err := vectorstore.Providers.New(context.Background(), "chroma", map[string]string{"tenant": "acme"})
	if err == nil || !strings.Contains(err.Error(), "missing required param: url") {
		t.Fatalf("error = %v", err)
	}
}
