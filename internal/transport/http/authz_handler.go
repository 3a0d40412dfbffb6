// Copyright 2026 The Heimdall Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdall-platform/heimdall/internal/authz"
)

// CreateGrant handles POST /api/v1/tenants/{tenantID}/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID           string            `json:"user_id"`
		ResourceType     string            `json:"resource_type"`
		ResourceID       string            `json:"resource_id"`
		Actions          []string          `json:"actions"`
		Conditions       map[string]string `json:"conditions"`
		BlockInheritance bool              `json:"block_inheritance"`
		ExpiresAt        *time.Time        `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grant, err := h.authzResolver.GrantPermission(r.Context(), authz.GrantPermissionInput{
		UserID:           body.UserID,
		TenantID:         chi.URLParam(r, "tenantID"),
		ResourceType:     body.ResourceType,
		ResourceID:       body.ResourceID,
		Actions:          body.Actions,
		Conditions:       body.Conditions,
		BlockInheritance: body.BlockInheritance,
		ExpiresAt:        body.ExpiresAt,
		GrantedBy:        GetUserID(r.Context()),
	})
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, grant)
}

// RevokeGrant handles DELETE /api/v1/tenants/{tenantID}/grants/{grantID}
func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	if err := h.authzResolver.RevokeGrant(r.Context(), chi.URLParam(r, "grantID"), GetUserID(r.Context())); err != nil {
		respondAuthzError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGrants handles GET /api/v1/tenants/{tenantID}/grants. With a
// user_id query parameter it lists that user's grants; without one it
// lists every grant in the tenant.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var (
		grants []*authz.Grant
		err    error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		grants, err = h.authzResolver.ListGrants(r.Context(), userID, tenantID)
	} else {
		grants, err = h.authzResolver.ListTenantGrants(r.Context(), tenantID)
	}
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

// CheckPermission handles GET /api/v1/tenants/{tenantID}/check. It
// answers for the calling user only; probing another user's access
// requires admin and goes through the grants listing instead.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceType := q.Get("resource_type")
	resourceID := q.Get("resource_id")
	action := q.Get("action")
	if resourceType == "" || action == "" {
		respondError(w, http.StatusBadRequest, "resource_type and action are required")
		return
	}
	if resourceID == "" {
		resourceID = authz.Wildcard
	}

	allowed, err := h.authzResolver.Check(r.Context(),
		GetUserID(r.Context()), chi.URLParam(r, "tenantID"), resourceType, resourceID, action)
	if err != nil {
		respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func respondAuthzError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrGrantNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrInvalidAction), errors.Is(err, authz.ErrInvalidGrant):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, authz.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access denied")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
