// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/leseb/docchat-gw/pkg/core/services"
	"github.com/leseb/docchat-gw/pkg/storage"
)

// UpdateUserRequest is the body of PUT /v1/users/{id}.
type UpdateUserRequest struct {
	Email              string     `json:"email,omitempty"`
	Name               string     `json:"name,omitempty"`
	Plan               string     `json:"plan,omitempty"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
}

// handleUsage handles GET /v1/usage
func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.usage.Stats(r.Context(), userID(r))
	if err != nil {
		h.logger.Error("Failed to compute usage", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to get usage")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetUser handles GET /v1/users/{id}
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handlePutUser handles PUT /v1/users/{id}. It is how the billing side
// records plan and subscription changes.
func (h *Handler) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	plan := strings.ToUpper(strings.TrimSpace(req.Plan))
	if plan == "" {
		plan = storage.PlanFree
	}
	if _, ok := services.Plans[plan]; !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown plan: "+req.Plan)
		return
	}

	user := &storage.User{
		ID:                 r.PathValue("id"),
		Email:              req.Email,
		Name:               req.Name,
		Plan:               plan,
		SubscriptionStatus: strings.ToUpper(req.SubscriptionStatus),
		CurrentPeriodEnd:   req.CurrentPeriodEnd,
	}
	if err := h.store.UpsertUser(r.Context(), user); err != nil {
		h.logger.Error("Failed to save user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", "Failed to save user")
		return
	}

	h.logger.Info("User updated", "user_id", user.ID, "plan", user.Plan)
	writeJSON(w, http.StatusOK, user)
}
