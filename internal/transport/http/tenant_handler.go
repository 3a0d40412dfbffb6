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

	"github.com/go-chi/chi/v5"

	"github.com/heimdall-platform/heimdall/internal/tenant"
)

// CreateTenant handles POST /api/v1/tenants. Creating a child requires
// manage on the parent; creating a root only requires authentication.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParentID *string `json:"parent_id"`
		Kind     string  `json:"kind"`
		Name     string  `json:"name"`
		Slug     string  `json:"slug"`
		MaxDepth int     `json:"max_depth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := GetUserID(r.Context())
	if body.ParentID != nil {
		allowed, err := h.authzResolver.Check(r.Context(), actorID, *body.ParentID, "tenant", "*", "manage")
		if err != nil || !allowed {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
	}

	t, err := h.tenantService.CreateTenant(r.Context(), tenant.CreateTenantInput{
		ParentID: body.ParentID,
		Kind:     body.Kind,
		Name:     body.Name,
		Slug:     body.Slug,
		MaxDepth: body.MaxDepth,
		ActorID:  actorID,
	})
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// GetTenant handles GET /api/v1/tenants/{tenantID}
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantService.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ListChildren handles GET /api/v1/tenants/{tenantID}/children
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if _, err := h.tenantService.GetTenant(r.Context(), tenantID); err != nil {
		respondTenantError(w, err)
		return
	}
	children, err := h.tenantService.ListChildren(r.Context(), tenantID)
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": children})
}

// GetAncestors handles GET /api/v1/tenants/{tenantID}/ancestors
func (h *Handler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	ancestors, err := h.tenantService.GetAncestors(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": ancestors})
}

// GetDescendants handles GET /api/v1/tenants/{tenantID}/descendants
func (h *Handler) GetDescendants(w http.ResponseWriter, r *http.Request) {
	descendants, err := h.tenantService.GetDescendants(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": descendants})
}

// ReparentTenant handles POST /api/v1/tenants/{tenantID}/reparent.
// Moving into a new parent additionally requires manage there.
func (h *Handler) ReparentTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewParentID *string `json:"new_parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := GetUserID(r.Context())
	if body.NewParentID != nil {
		allowed, err := h.authzResolver.Check(r.Context(), actorID, *body.NewParentID, "tenant", "*", "manage")
		if err != nil || !allowed {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
	}

	t, err := h.tenantService.Reparent(r.Context(), chi.URLParam(r, "tenantID"), body.NewParentID, actorID)
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ArchiveTenant handles POST /api/v1/tenants/{tenantID}/archive
func (h *Handler) ArchiveTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenantService.Archive(r.Context(), chi.URLParam(r, "tenantID"), GetUserID(r.Context())); err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// SuspendTenant handles POST /api/v1/tenants/{tenantID}/suspend
func (h *Handler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenantService.Suspend(r.Context(), chi.URLParam(r, "tenantID"), GetUserID(r.Context())); err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

// ActivateTenant handles POST /api/v1/tenants/{tenantID}/activate
func (h *Handler) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenantService.Activate(r.Context(), chi.URLParam(r, "tenantID"), GetUserID(r.Context())); err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// ListMembers handles GET /api/v1/tenants/{tenantID}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.tenantService.ListMembers(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// AddMember handles POST /api/v1/tenants/{tenantID}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      string   `json:"user_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.tenantService.AddMembership(r.Context(), tenant.AddMembershipInput{
		TenantID:    chi.URLParam(r, "tenantID"),
		UserID:      body.UserID,
		Role:        body.Role,
		Permissions: body.Permissions,
		InvitedBy:   GetUserID(r.Context()),
	})
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// AcceptInvite handles POST /api/v1/tenants/{tenantID}/members/accept.
// Only the invited user can accept, so no permission guard applies.
func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	m, err := h.tenantService.AcceptInvite(r.Context(), chi.URLParam(r, "tenantID"), GetUserID(r.Context()))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// UpdateMemberRole handles PUT /api/v1/tenants/{tenantID}/members/{userID}
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.tenantService.UpdateRole(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), body.Role, GetUserID(r.Context()))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveMember handles DELETE /api/v1/tenants/{tenantID}/members/{userID}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.tenantService.RemoveMembership(r.Context(),
		chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), GetUserID(r.Context()))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMyMemberships handles GET /api/v1/me/memberships
func (h *Handler) ListMyMemberships(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.tenantService.ListUserMemberships(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondTenantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memberships": memberships})
}

func respondTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, tenant.ErrParentNotFound),
		errors.Is(err, tenant.ErrMembershipNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tenant.ErrDuplicateSlug),
		errors.Is(err, tenant.ErrMembershipExists),
		errors.Is(err, tenant.ErrInviteAccepted):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrCircularReference),
		errors.Is(err, tenant.ErrMaxDepthExceeded),
		errors.Is(err, tenant.ErrTenantArchived),
		errors.Is(err, tenant.ErrSelfInvite),
		errors.Is(err, tenant.ErrInvalidRole),
		errors.Is(err, tenant.ErrInvalidKind),
		errors.Is(err, tenant.ErrInvalidMaxDepth),
		errors.Is(err, tenant.ErrInvalidSlug):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
