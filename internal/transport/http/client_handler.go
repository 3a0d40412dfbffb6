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

	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

// RegisterClient handles POST /api/v1/tenants/{tenantID}/clients. The
// plaintext secret appears once in this response and is never
// retrievable again.
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name                 string   `json:"name"`
		RedirectURIs         []string `json:"redirect_uris"`
		AllowedScopes        []string `json:"allowed_scopes"`
		GrantTypes           []string `json:"grant_types"`
		RequirePKCE          bool     `json:"require_pkce"`
		Trusted              bool     `json:"trusted"`
		Public               bool     `json:"public"`
		AccessTokenLifetime  int      `json:"access_token_lifetime"`
		RefreshTokenLifetime int      `json:"refresh_token_lifetime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" || len(body.RedirectURIs) == 0 {
		respondError(w, http.StatusBadRequest, "name and redirect_uris are required")
		return
	}

	client, secret, err := h.oauth2Service.RegisterClient(r.Context(), oauth2.RegisterClientInput{
		Name:                 body.Name,
		TenantID:             chi.URLParam(r, "tenantID"),
		RedirectURIs:         body.RedirectURIs,
		AllowedScopes:        body.AllowedScopes,
		GrantTypes:           body.GrantTypes,
		RequirePKCE:          body.RequirePKCE,
		Trusted:              body.Trusted,
		Public:               body.Public,
		AccessTokenLifetime:  body.AccessTokenLifetime,
		RefreshTokenLifetime: body.RefreshTokenLifetime,
		ActorID:              GetUserID(r.Context()),
	})
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"client":        client,
		"client_secret": secret,
	})
}

// ListClients handles GET /api/v1/tenants/{tenantID}/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.oauth2Service.ListClients(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// SuspendClient handles POST /api/v1/tenants/{tenantID}/clients/{clientID}/suspend
func (h *Handler) SuspendClient(w http.ResponseWriter, r *http.Request) {
	if err := h.oauth2Service.SuspendClient(r.Context(), chi.URLParam(r, "clientID"), GetUserID(r.Context())); err != nil {
		respondClientError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

// RevokeClient handles POST /api/v1/tenants/{tenantID}/clients/{clientID}/revoke
func (h *Handler) RevokeClient(w http.ResponseWriter, r *http.Request) {
	if err := h.oauth2Service.RevokeClient(r.Context(), chi.URLParam(r, "clientID"), GetUserID(r.Context())); err != nil {
		respondClientError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func respondClientError(w http.ResponseWriter, err error) {
	if errors.Is(err, oauth2.ErrClientNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal error")
}
