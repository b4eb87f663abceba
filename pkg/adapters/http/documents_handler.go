// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/filestore"
	"github.com/leseb/docchat-gw/pkg/loader"
	"github.com/leseb/docchat-gw/pkg/storage"
)

// documentView is a document as returned by the documents API.
type documentView struct {
	*storage.Document
	URL  string    `json:"url"`
	File *fileView `json:"file,omitempty"`
}

// fileView is the stored file behind a document.
type fileView struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Bytes     int64  `json:"bytes"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

func newFileView(f *filestore.File) *fileView {
	return &fileView{
		ID:        f.ID,
		Object:    "file",
		Filename:  f.Filename,
		MimeType:  f.MimeType,
		Bytes:     f.Bytes,
		Status:    f.Status,
		CreatedAt: f.CreatedAt.Unix(),
	}
}

// fileList is a cursor page of files.
type fileList struct {
	Object  string      `json:"object"`
	Data    []*fileView `json:"data"`
	FirstID string      `json:"first_id,omitempty"`
	LastID  string      `json:"last_id,omitempty"`
	HasMore bool        `json:"has_more"`
}

// documentURL returns a presigned URL when the file store can sign, or the
// gateway's content route otherwise.
func (h *Handler) documentURL(ctx context.Context, doc *storage.Document) string {
	if signer, ok := h.files.(filestore.URLSigner); ok {
		u, err := signer.SignURL(ctx, doc.Key, h.opts.URLExpiry)
		if err == nil {
			return u
		}
		h.logger.Warn("Failed to sign document URL", "document_id", doc.ID, "error", err)
	}
	return "/v1/documents/" + doc.ID + "/content"
}

// ownedDocument loads a document and hides documents of other users.
func (h *Handler) ownedDocument(w http.ResponseWriter, r *http.Request) (*storage.Document, bool) {
	doc, err := h.store.GetDocument(r.Context(), r.PathValue("id"))
	if err == nil && doc.UserID != userID(r) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Document not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get document", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to get document")
		return nil, false
	}
	return doc, true
}

// handleUploadDocument handles POST /v1/documents
func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userID(r)

	if !h.checkLimit(w, "Upload limit exceeded", h.usage.CheckDocumentLimit(ctx, user)) {
		return
	}

	// Leave room for the multipart envelope; the file itself is checked below.
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("File too large for %d", h.opts.MaxUploadBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.opts.MaxUploadBytes {
		h.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("File too large for %d", h.opts.MaxUploadBytes))
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "read_error", "Failed to read file content")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if kind, err := loader.Detect(content, header.Filename, contentType); err != nil || kind != loader.KindPDF {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "File type not allowed")
		return
	}
	contentType = "application/pdf"

	now := time.Now().UTC()
	docID := storage.NewID("doc")
	if err := h.files.CreateFile(ctx, &filestore.File{
		ID:        docID,
		Filename:  header.Filename,
		OwnerID:   user,
		MimeType:  contentType,
		Bytes:     int64(len(content)),
		Content:   content,
		Status:    filestore.StatusUploaded,
		CreatedAt: now,
	}); err != nil {
		h.logger.Error("Failed to store file", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Upload failed")
		return
	}

	doc := &storage.Document{
		ID:        docID,
		UserID:    user,
		Name:      header.Filename,
		Key:       docID,
		Size:      int64(len(content)),
		Type:      contentType,
		Namespace: h.ingest.Namespace(docID),
		IndexName: h.ingest.IndexName(),
		IsActive:  true,
		Status:    filestore.StatusUploaded,
		CreatedAt: now,
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		h.logger.Error("Failed to create document", "error", err)
		_ = h.files.DeleteFile(ctx, docID)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Upload failed")
		return
	}

	res, err := h.ingest.IngestContent(ctx, services.AddRecordInput{UserID: user, DocumentID: docID}, content, header.Filename, contentType)
	if err != nil {
		h.logger.Error("Vector DB upload error", "document_id", docID, "error", err)
		cleanup := context.WithoutCancel(ctx)
		_ = h.ingest.RemoveDocument(cleanup, docID)
		_ = h.store.DeleteDocument(cleanup, docID)
		_ = h.files.DeleteFile(cleanup, docID)
		h.writeError(w, http.StatusInternalServerError, "ingestion_error", "Vector DB upload failed")
		return
	}

	doc.Status = filestore.StatusProcessed
	if err := h.store.UpdateDocument(ctx, doc); err != nil {
		h.logger.Warn("Failed to mark document processed", "document_id", docID, "error", err)
	}

	h.logger.Info("Document uploaded",
		"document_id", docID,
		"user_id", user,
		"bytes", len(content),
		"chunks", res.Chunks)

	writeJSON(w, http.StatusCreated, documentView{Document: doc, URL: h.documentURL(ctx, doc)})
}

// handleListDocuments handles GET /v1/documents
func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context(), userID(r))
	if err != nil {
		h.logger.Error("Failed to list documents", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list documents")
		return
	}

	if len(docs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": []documentView{},
			"message":   "No documents found",
		})
		return
	}

	views := make([]documentView, len(docs))
	for i, d := range docs {
		views[i] = documentView{Document: d, URL: h.documentURL(r.Context(), d)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": views,
		"total":     len(views),
	})
}

// handleGetDocument handles GET /v1/documents/{id}
func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	view := documentView{Document: doc, URL: h.documentURL(r.Context(), doc)}
	file, err := h.files.GetFile(r.Context(), doc.Key)
	switch {
	case err == nil:
		view.File = newFileView(file)
	case !errors.Is(err, filestore.ErrFileNotFound):
		h.logger.Warn("Failed to get document file", "document_id", doc.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListFiles handles GET /v1/files
func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	after := query.Get("after")
	before := query.Get("before")
	order := query.Get("order")
	if order == "" {
		order = "desc"
	}
	if order != "asc" && order != "desc" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "order must be asc or desc")
		return
	}

	limit := 50
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	files, hasMore, err := h.files.ListFilesPaginated(r.Context(), after, before, limit, order, userID(r))
	if err != nil {
		h.logger.Error("Failed to list files", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_error", "Failed to list files")
		return
	}

	resp := fileList{Object: "list", Data: make([]*fileView, 0, len(files)), HasMore: hasMore}
	for _, f := range files {
		resp.Data = append(resp.Data, newFileView(f))
	}
	if len(resp.Data) > 0 {
		resp.FirstID = resp.Data[0].ID
		resp.LastID = resp.Data[len(resp.Data)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetDocumentContent handles GET /v1/documents/{id}/content
func (h *Handler) handleGetDocumentContent(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	content, err := h.files.GetFileContent(r.Context(), doc.Key)
	if errors.Is(err, filestore.ErrFileNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Document content not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read document content", "document_id", doc.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to read document content")
		return
	}

	contentType := doc.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	if doc.Name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// handleDeleteDocument handles DELETE /v1/documents/{id}
func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.ingest.RemoveDocument(ctx, doc.ID); err != nil {
		h.logger.Error("Failed to remove document vectors", "document_id", doc.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to delete document")
		return
	}
	if err := h.files.DeleteFile(ctx, doc.Key); err != nil && !errors.Is(err, filestore.ErrFileNotFound) {
		h.logger.Error("Failed to delete document file", "document_id", doc.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to delete document")
		return
	}
	if err := h.store.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("Failed to delete document", "document_id", doc.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to delete document")
		return
	}

	h.logger.Info("Document deleted", "document_id", doc.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      doc.ID,
		"deleted": true,
	})
}
