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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdall-platform/heimdall/internal/observability/logger"
	"github.com/heimdall-platform/heimdall/internal/session"
)

// ListSessions handles GET /api/v1/me/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// RevokeSession handles DELETE /api/v1/me/sessions/{jti}. Users can
// only revoke their own sessions.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	jti := chi.URLParam(r, "jti")

	sessions, err := h.sessionService.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	owned := false
	for _, s := range sessions {
		if s.JTI == jti {
			owned = true
			break
		}
	}
	if !owned {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := h.revokeSessionAndTokens(r, jti, session.ReasonAdminRevoked); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/v1/me/sessions/logout. It revokes the
// current session, the tokens bound to it, and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	jti := GetSessionJTI(r.Context())
	if err := h.revokeSessionAndTokens(r, jti, session.ReasonLogout); err != nil {
		respondSessionError(w, err)
		return
	}
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// LogoutAll handles POST /api/v1/me/sessions/logout-all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	sessions, err := h.sessionService.List(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	count, err := h.sessionService.RevokeAllForUser(r.Context(), userID, session.ReasonLogout)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	for _, s := range sessions {
		if err := h.oauth2Service.RevokeSessionTokens(r.Context(), s.JTI); err != nil {
			slog.WarnContext(r.Context(), "session token revocation failed",
				logger.Error(err), logger.UserID(userID))
		}
	}

	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "revoked": count})
}

func (h *Handler) revokeSessionAndTokens(r *http.Request, jti, reason string) error {
	if err := h.sessionService.Revoke(r.Context(), jti, reason); err != nil {
		return err
	}
	if err := h.oauth2Service.RevokeSessionTokens(r.Context(), jti); err != nil {
		slog.WarnContext(r.Context(), "session token revocation failed", logger.Error(err))
	}
	return nil
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionExpired):
		respondError(w, http.StatusGone, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
