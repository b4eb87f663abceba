// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/leseb/docchat-gw/pkg/core/api"
	"github.com/leseb/docchat-gw/pkg/loader"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
	"github.com/leseb/docchat-gw/pkg/splitter"
	"github.com/leseb/docchat-gw/pkg/vectorstore"
)

// ErrEmptyDocument is returned when a document yields no text chunks.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// DefaultEmbedBatchSize bounds the number of chunks per embedding request.
const DefaultEmbedBatchSize = 96

// Record metadata keys.
const (
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaSource     = "source"
	MetaDocumentID = "document_id"
	MetaUserID     = "user_id"
)

// IngestConfig holds the ingestion settings.
type IngestConfig struct {
	IndexName       string
	NamespacePrefix string
	ChunkSize       int   // used to flag oversize chunks
	MaxFetchBytes   int64 // 0 = unlimited
	EmbedBatchSize  int
}

// AddRecordInput identifies a document to ingest.
type AddRecordInput struct {
	DocumentURL string
	UserID      string
	DocumentID  string
}

// AddRecordResult describes an ingested document.
type AddRecordResult struct {
	Namespace  string `json:"namespace"`
	UserID     string `json:"userId"`
	IndexName  string `json:"indexName"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"-"`
	Pages      int    `json:"-"`
}

// IngestService turns documents into embedded chunks in a per-document
// namespace.
type IngestService struct {
	client   *http.Client
	splitter splitter.Splitter
	embedder api.EmbeddingClient
	backend  vectorstore.Backend
	cfg      IngestConfig
	logger   *logging.Logger
}

// NewIngestService creates an IngestService. A nil client uses
// http.DefaultClient.
func NewIngestService(client *http.Client, sp splitter.Splitter, embedder api.EmbeddingClient, backend vectorstore.Backend, cfg IngestConfig, logger *logging.Logger) *IngestService {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &IngestService{
		client:   client,
		splitter: sp,
		embedder: embedder,
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
	}
}

// IndexName returns the configured index name.
func (s *IngestService) IndexName() string {
	return s.cfg.IndexName
}

// Namespace returns the vector namespace of a document.
func (s *IngestService) Namespace(documentID string) string {
	return s.cfg.NamespacePrefix + documentID
}

// AddRecord downloads the document at in.DocumentURL and ingests it.
// Download failures wrap loader.ErrFetchFailed or loader.ErrTooLarge.
func (s *IngestService) AddRecord(ctx context.Context, in AddRecordInput) (*AddRecordResult, error) {
	dl, err := loader.Fetch(ctx, s.client, in.DocumentURL, s.cfg.MaxFetchBytes)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Document downloaded", "document_id", in.DocumentID, "bytes", len(dl.Content), "content_type", dl.ContentType)
	return s.ingest(ctx, in, dl.Content, dl.Filename, dl.ContentType, in.DocumentURL)
}

// IngestContent ingests already available document bytes.
func (s *IngestService) IngestContent(ctx context.Context, in AddRecordInput, content []byte, filename, contentType string) (*AddRecordResult, error) {
	return s.ingest(ctx, in, content, filename, contentType, filename)
}

// RemoveDocument deletes the document's namespace and all its chunks.
func (s *IngestService) RemoveDocument(ctx context.Context, documentID string) error {
	if err := s.backend.DeleteNamespace(ctx, s.Namespace(documentID)); err != nil {
		return fmt.Errorf("delete namespace for %s: %w", documentID, err)
	}
	return nil
}

func (s *IngestService) ingest(ctx context.Context, in AddRecordInput, content []byte, filename, contentType, source string) (*AddRecordResult, error) {
	pages, err := loader.Load(content, filename, contentType)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Source = source
	}

	var docs []splitter.Document
	for _, d := range splitter.SplitDocuments(s.splitter, pages) {
		d = splitter.RemoveNewlines(d)
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if s.cfg.ChunkSize > 0 && utf8.RuneCountInString(d.Content) > s.cfg.ChunkSize {
			s.logger.Warn("Created a chunk larger than the chunk size",
				"document_id", in.DocumentID,
				"size", utf8.RuneCountInString(d.Content),
				"chunk_size", s.cfg.ChunkSize)
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %s: %w", in.DocumentID, ErrEmptyDocument)
	}

	vectors, err := s.embedAll(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("embed chunks for %s: %w", in.DocumentID, err)
	}
	records := make([]vectorstore.Record, len(docs))
	for i, d := range docs {
		records[i] = vectorstore.Record{
			ID:       "rect" + strconv.Itoa(i),
			Text:     d.Content,
			Vector:   vectors[i],
			Metadata: recordMetadata(d, in),
		}
	}

	ns := s.Namespace(in.DocumentID)

	// Reset only after every chunk is embedded.
	if err := s.backend.DeleteNamespace(ctx, ns); err != nil {
		return nil, fmt.Errorf("reset namespace %s: %w", ns, err)
	}
	if err := s.backend.EnsureNamespace(ctx, ns, s.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", ns, err)
	}
	for start := 0; start < len(records); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(records))
		if err := s.backend.Upsert(ctx, ns, records[start:end]); err != nil {
			return nil, fmt.Errorf("upsert chunks for %s: %w", in.DocumentID, err)
		}
	}

	s.logger.Info("Record added",
		"document_id", in.DocumentID,
		"user_id", in.UserID,
		"namespace", ns,
		"pages", len(pages),
		"chunks", len(docs))

	return &AddRecordResult{
		Namespace:  ns,
		UserID:     in.UserID,
		IndexName:  s.cfg.IndexName,
		DocumentID: in.DocumentID,
		Chunks:     len(docs),
		Pages:      len(pages),
	}, nil
}

// embedAll embeds docs in batches of EmbedBatchSize.
func (s *IngestService) embedAll(ctx context.Context, docs []splitter.Document) ([][]float32, error) {
	out := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(texts))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func recordMetadata(d splitter.Document, in AddRecordInput) map[string]string {
	meta := map[string]string{
		MetaDocumentID: in.DocumentID,
		MetaUserID:     in.UserID,
	}
	if v, ok := d.Metadata[splitter.MetaSource].(string); ok {
		meta[MetaSource] = v
	}
	if v, ok := d.Metadata[splitter.MetaPage].(int); ok {
		meta[MetaPage] = strconv.Itoa(v)
	}
	if v, ok := d.Metadata[splitter.MetaTotalPages].(int); ok {
		meta[MetaTotalPages] = strconv.Itoa(v)
	}
	return meta
}
