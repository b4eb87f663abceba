// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package http is the REST adapter of the document chat gateway.
package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/filestore"
	"github.com/leseb/docchat-gw/pkg/observability/logging"
	"github.com/leseb/docchat-gw/pkg/storage"
)

const (
	headerAPIKey = "X-API-Key"
	headerUserID = "X-User-ID"

	maxJSONBody = 1 << 20
)

// Options configures the HTTP adapter.
type Options struct {
	// APIKey is compared with the X-API-Key header. An empty key rejects
	// every protected request.
	APIKey string
	// MaxUploadBytes caps document uploads.
	MaxUploadBytes int64
	// URLExpiry is the lifetime of presigned document URLs.
	URLExpiry time.Duration
}

// Handler implements the HTTP adapter
type Handler struct {
	logger *logging.Logger
	mux    *http.ServeMux
	opts   Options

	ingest *services.IngestService
	chat   *services.ChatService
	usage  *services.UsageService
	store  storage.Store
	files  filestore.FileStore
}

// New creates a new HTTP handler
func New(logger *logging.Logger, ingest *services.IngestService, chat *services.ChatService, usage *services.UsageService, store storage.Store, files filestore.FileStore, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	h := &Handler{
		logger: logger,
		mux:    http.NewServeMux(),
		opts:   opts,
		ingest: ingest,
		chat:   chat,
		usage:  usage,
		store:  store,
		files:  files,
	}

	// Public
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /openapi.json", h.handleOpenAPI)

	// Retrieval API
	h.mux.Handle("POST /add-record", h.requireAPIKey(h.handleAddRecord))
	h.mux.Handle("POST /get-response", h.requireAPIKey(h.handleGetResponse))

	// Documents API
	h.mux.Handle("POST /v1/documents", h.requireUser(h.handleUploadDocument))
	h.mux.Handle("GET /v1/documents", h.requireUser(h.handleListDocuments))
	h.mux.Handle("GET /v1/documents/{id}", h.requireUser(h.handleGetDocument))
	h.mux.Handle("GET /v1/documents/{id}/content", h.requireUser(h.handleGetDocumentContent))
	h.mux.Handle("DELETE /v1/documents/{id}", h.requireUser(h.handleDeleteDocument))
	h.mux.Handle("GET /v1/files", h.requireUser(h.handleListFiles))

	// Chats API
	h.mux.Handle("GET /v1/chats", h.requireUser(h.handleListChats))
	h.mux.Handle("POST /v1/chats/messages", h.requireUser(h.handleCreateMessage))
	h.mux.Handle("GET /v1/chats/messages", h.requireUser(h.handleListMessages))
	h.mux.Handle("POST /v1/chats/response", h.requireUser(h.handleChatResponse))

	// Usage and users API
	h.mux.Handle("GET /v1/usage", h.requireUser(h.handleUsage))
	h.mux.Handle("GET /v1/users/{id}", h.requireAPIKey(h.handleGetUser))
	h.mux.Handle("PUT /v1/users/{id}", h.requireAPIKey(h.handlePutUser))

	return h
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.mux.ServeHTTP(rec, r)

	h.logger.Info("Request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
		"remote_addr", r.RemoteAddr)
}

// requireAPIKey rejects requests without the configured X-API-Key.
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if h.opts.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.opts.APIKey)) != 1 {
			h.logger.Warn("Rejected request with invalid API key", "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Invalid API key"})
			return
		}
		next(w, r)
	})
}

// requireUser checks the API key and that the caller named a user.
func (h *Handler) requireUser(next http.HandlerFunc) http.Handler {
	return h.requireAPIKey(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "X-User-ID header is required")
			return
		}
		next(w, r)
	})
}

func userID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// writeLimitError writes the quota failure body used by the documents and
// chats APIs.
func (h *Handler) writeLimitError(w http.ResponseWriter, label string, err *services.LimitError) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"error":        label,
		"message":      err.Error(),
		"currentCount": err.Current,
		"maxAllowed":   err.Max,
	})
}

// checkLimit writes the response for a failed quota check and reports
// whether the request may continue.
func (h *Handler) checkLimit(w http.ResponseWriter, label string, err error) bool {
	if err == nil {
		return true
	}
	var limitErr *services.LimitError
	if errors.As(err, &limitErr) {
		h.writeLimitError(w, label, limitErr)
		return false
	}
	h.logger.Error("Quota check failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to check usage limits")
	return false
}
