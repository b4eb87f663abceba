// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/leseb/docchat-gw/pkg/core/api"
	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/loader"
)

// AddRecordRequest is the body of POST /add-record.
type AddRecordRequest struct {
	DocumentURL string `json:"documentUrl"`
	UserID      string `json:"userId"`
	DocumentID  string `json:"documentId"`
}

// GetResponseRequest is the body of POST /get-response.
type GetResponseRequest struct {
	Query       string   `json:"query"`
	Namespace   string   `json:"namespace,omitempty"`
	IndexName   string   `json:"indexName,omitempty"`
	ChatHistory []string `json:"chat_history,omitempty"`
}

// handleAddRecord handles POST /add-record
func (h *Handler) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req AddRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	var missing []string
	if strings.TrimSpace(req.DocumentURL) == "" {
		missing = append(missing, "documentUrl")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		missing = append(missing, "documentId")
	}
	if len(missing) > 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	res, err := h.ingest.AddRecord(r.Context(), services.AddRecordInput{
		DocumentURL: req.DocumentURL,
		UserID:      req.UserID,
		DocumentID:  req.DocumentID,
	})
	if err != nil {
		h.logger.Error("Failed to add record", "document_id", req.DocumentID, "error", err)
		status, errType := ingestErrorStatus(err)
		h.writeError(w, status, errType, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ingestErrorStatus maps ingestion failures to HTTP statuses.
func ingestErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, loader.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "document_too_large"
	case errors.Is(err, loader.ErrFetchFailed):
		return http.StatusBadGateway, "download_error"
	case errors.Is(err, loader.ErrUnsupportedContent), errors.Is(err, services.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, "unprocessable_document"
	default:
		return http.StatusInternalServerError, "ingestion_error"
	}
}

// handleGetResponse handles POST /get-response
func (h *Handler) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	var req GetResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	stream, err := h.chat.Answer(r.Context(), services.AnswerInput{
		Query:       req.Query,
		Namespace:   req.Namespace,
		ChatHistory: req.ChatHistory,
	})
	if err != nil {
		h.writeAnswerError(w, err)
		return
	}

	if _, err := h.streamText(w, r, stream); err != nil {
		h.logger.Error("Response stream failed", "namespace", req.Namespace, "error", err)
	}
}

// writeAnswerError writes the response for an answer that could not start.
func (h *Handler) writeAnswerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDocumentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "namespace not found"})
	case errors.Is(err, services.ErrEmptyQuery):
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("Failed to answer", "error", err)
		h.writeError(w, http.StatusInternalServerError, "processing_error", err.Error())
	}
}

// streamText writes deltas as a plain text stream, flushing after each one.
// A model failure is written into the stream as "Error: <message>". It
// returns the text streamed and the model error, if any.
func (h *Handler) streamText(w http.ResponseWriter, r *http.Request, stream <-chan api.Delta) (string, error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	var sb strings.Builder
	for d := range stream {
		if d.Err != nil {
			_, _ = io.WriteString(w, "Error: "+d.Err.Error())
			_ = rc.Flush()
			return sb.String(), d.Err
		}
		sb.WriteString(d.Content)
		if _, err := io.WriteString(w, d.Content); err != nil {
			// Client went away; drain so the producer can exit.
			for range stream {
			}
			return sb.String(), err
		}
		_ = rc.Flush()
	}

	if err := r.Context().Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}
