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

	"github.com/heimdall-platform/heimdall/internal/consent"
)

// GrantConsent handles POST /api/v1/me/consents
func (h *Handler) GrantConsent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID  string     `json:"client_id"`
		Scope     string     `json:"scope"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ClientID == "" || body.Scope == "" {
		respondError(w, http.StatusBadRequest, "client_id and scope are required")
		return
	}

	c, err := h.consentService.Grant(r.Context(), GetUserID(r.Context()), body.ClientID, body.Scope, body.ExpiresAt)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// ListConsents handles GET /api/v1/me/consents
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	consents, err := h.consentService.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"consents": consents})
}

// RevokeConsent handles DELETE /api/v1/me/consents/{clientID}
func (h *Handler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	err := h.consentService.Revoke(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "clientID"))
	if err != nil {
		if errors.Is(err, consent.ErrConsentNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
