// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/storage"
)

// CreateMessageRequest is the body of POST /v1/chats/messages.
type CreateMessageRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId,omitempty"`
}

// ChatResponseRequest is the body of POST /v1/chats/response.
type ChatResponseRequest struct {
	Query      string `json:"query"`
	ChatID     string `json:"chatId"`
	DocumentID string `json:"documentId,omitempty"`
}

// chatSummary is a chat as listed by GET /v1/chats.
type chatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const messageLimitLabel = "Message limit exceeded"

// ownedChat loads a chat and hides chats of other users.
func (h *Handler) ownedChat(w http.ResponseWriter, r *http.Request, chatID string) (*storage.Chat, bool) {
	chat, err := h.store.GetChat(r.Context(), chatID)
	if err == nil && chat.UserID != userID(r) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Chat not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get chat", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to get chat")
		return nil, false
	}
	return chat, true
}

// handleListChats handles GET /v1/chats
func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.ListChats(r.Context(), userID(r))
	if err != nil {
		h.logger.Error("Failed to list chats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list chats")
		return
	}

	out := make([]chatSummary, len(chats))
	for i, c := range chats {
		out[i] = chatSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateMessage handles POST /v1/chats/messages
func (h *Handler) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userID(r)

	if !h.checkLimit(w, messageLimitLabel, h.usage.CheckMessageLimit(ctx, user)) {
		return
	}

	var req CreateMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	now := time.Now().UTC()
	chatID := req.ChatID
	if chatID == "" {
		chat := &storage.Chat{
			ID:        storage.NewID("chat"),
			UserID:    user,
			Title:     req.Text,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := h.store.CreateChat(ctx, chat); err != nil {
			h.logger.Error("Failed to create chat", "error", err)
			h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to create chat")
			return
		}
		chatID = chat.ID
	} else if _, ok := h.ownedChat(w, r, chatID); !ok {
		return
	}

	msg := &storage.Message{
		ID:        storage.NewID("msg"),
		ChatID:    chatID,
		UserID:    user,
		Text:      req.Text,
		IsUser:    true,
		CreatedAt: now,
	}
	if err := h.store.AddMessage(ctx, msg); err != nil {
		h.logger.Error("Failed to store message", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to store message")
		return
	}
	if err := h.store.TouchChat(ctx, chatID, now); err != nil {
		h.logger.Warn("Failed to update chat timestamp", "chat_id", chatID, "error", err)
	}
	if err := h.usage.RecordMessage(ctx, user); err != nil {
		h.logger.Warn("Failed to count message", "user_id", user, "error", err)
	}

	writeJSON(w, http.StatusOK, msg)
}

// handleListMessages handles GET /v1/chats/messages?chatId=
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "chatId is required")
		return
	}
	if _, ok := h.ownedChat(w, r, chatID); !ok {
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), chatID)
	if err != nil {
		h.logger.Error("Failed to list messages", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*storage.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleChatResponse handles POST /v1/chats/response. The chat's stored
// messages become the history; the answer is streamed and stored once
// complete.
func (h *Handler) handleChatResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userID(r)

	if !h.checkLimit(w, messageLimitLabel, h.usage.CheckMessageLimit(ctx, user)) {
		return
	}

	var req ChatResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ChatID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Query and chatId are required")
		return
	}
	if _, ok := h.ownedChat(w, r, req.ChatID); !ok {
		return
	}

	msgs, err := h.store.ListMessages(ctx, req.ChatID)
	if err != nil {
		h.logger.Error("Failed to load chat history", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to load chat history")
		return
	}
	history := make([]string, len(msgs))
	for i, m := range msgs {
		speaker := "AI"
		if m.IsUser {
			speaker = "User"
		}
		history[i] = speaker + ": " + m.Text
	}

	var namespace string
	if req.DocumentID != "" {
		doc, err := h.store.GetDocument(ctx, req.DocumentID)
		switch {
		case err == nil && doc.UserID == user:
			namespace = doc.Namespace
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			h.logger.Error("Failed to get document", "error", err)
			h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to get document")
			return
		}
	}

	stream, err := h.chat.Answer(ctx, services.AnswerInput{
		Query:       req.Query,
		Namespace:   namespace,
		ChatHistory: history,
	})
	if err != nil {
		h.writeAnswerError(w, err)
		return
	}

	answer, err := h.streamText(w, r, stream)
	if err != nil {
		h.logger.Error("Chat response stream failed", "chat_id", req.ChatID, "error", err)
		return
	}

	// The client may already be gone; the answer is stored regardless.
	store := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	if err := h.store.AddMessage(store, &storage.Message{
		ID:        storage.NewID("msg"),
		ChatID:    req.ChatID,
		UserID:    user,
		Text:      answer,
		IsUser:    false,
		CreatedAt: now,
	}); err != nil {
		h.logger.Error("Failed to store AI message", "chat_id", req.ChatID, "error", err)
		return
	}
	if err := h.store.TouchChat(store, req.ChatID, now); err != nil {
		h.logger.Warn("Failed to update chat timestamp", "chat_id", req.ChatID, "error", err)
	}
}
