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
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/heimdall-platform/heimdall/internal/oauth2"
	"github.com/heimdall-platform/heimdall/internal/observability/logger"
)

// Authorize handles GET /oauth2/authorize (RFC 6749 Section 4.1.1).
// The caller is already authenticated; on success the user agent is
// redirected back to the client with an authorization code. Errors
// found before the redirect URI is validated are returned to the
// caller directly and never redirected.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &oauth2.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	client, oerr := h.oauth2Service.ValidateAuthorizeRequest(r.Context(), req)
	if oerr != nil {
		if client == nil {
			// The redirect URI did not validate; do not redirect.
			respondOAuthError(w, oerr)
			return
		}
		h.redirectWithError(w, r, req.RedirectURI, oerr)
		return
	}

	userID := GetUserID(r.Context())

	granted, err := h.consentService.HasConsent(r.Context(), userID, client.ClientID, req.Scope)
	if err != nil {
		slog.ErrorContext(r.Context(), "consent lookup failed",
			logger.Error(err), logger.ClientID(client.ClientID))
		h.redirectWithError(w, r, req.RedirectURI,
			oauth2.NewError(oauth2.ErrServerError, "consent lookup failed").WithState(req.State))
		return
	}
	if !granted {
		// The caller must collect consent via POST /api/v1/me/consents
		// and retry the authorization request.
		respondJSON(w, http.StatusOK, map[string]any{
			"consent_required": true,
			"client_id":        client.ClientID,
			"client_name":      client.Name,
			"scope":            req.Scope,
		})
		return
	}

	code, err := h.oauth2Service.CreateAuthorizationCode(r.Context(), req, userID, GetSessionJTI(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "authorization code issuance failed",
			logger.Error(err), logger.ClientID(client.ClientID))
		h.redirectWithError(w, r, req.RedirectURI,
			oauth2.NewError(oauth2.ErrServerError, "failed to issue authorization code").WithState(req.State))
		return
	}

	params := url.Values{"code": {code.Code}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	http.Redirect(w, r, addQueryParams(req.RedirectURI, params), http.StatusFound)
}

// Token handles POST /oauth2/token (RFC 6749 Section 3.2). Client
// credentials come from the form body or HTTP Basic auth
// (RFC 6749 Section 2.3.1).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed request body"))
		return
	}

	req := &oauth2.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	var (
		resp *oauth2.TokenResponse
		oerr *oauth2.Error
	)
	switch req.GrantType {
	case oauth2.GrantTypeAuthorizationCode:
		resp, oerr = h.oauth2Service.ExchangeCodeForToken(r.Context(), req)
	case oauth2.GrantTypeRefreshToken:
		resp, oerr = h.oauth2Service.RefreshAccessToken(r.Context(), req)
	default:
		oerr = oauth2.NewError(oauth2.ErrUnsupportedGrantType, "unsupported grant_type")
	}
	if oerr != nil {
		respondOAuthError(w, oerr)
		return
	}

	// RFC 6749 Section 5.1: responses with tokens must not be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, http.StatusOK, resp)
}

// Revoke handles POST /oauth2/revoke (RFC 7009). Unknown tokens
// produce 200 like valid ones so callers cannot probe token validity.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed request body"))
		return
	}

	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if id, secret, ok := r.BasicAuth(); ok {
		clientID = id
		clientSecret = secret
	}

	if oerr := h.oauth2Service.RevokeToken(r.Context(), r.PostFormValue("token"), clientID, clientSecret); oerr != nil {
		respondOAuthError(w, oerr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Introspect handles POST /oauth2/introspect (RFC 7662). Per the RFC,
// any failure to match an active token yields {"active": false} rather
// than an error.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed request body"))
		return
	}

	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if id, secret, ok := r.BasicAuth(); ok {
		clientID = id
		clientSecret = secret
	}
	if _, err := h.oauth2Service.Authenticate(r.Context(), clientID, clientSecret); err != nil {
		respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidClient, "client authentication failed"))
		return
	}

	introspection, err := h.oauth2Service.Introspect(r.Context(), r.PostFormValue("token"))
	if err != nil {
		slog.ErrorContext(r.Context(), "token introspection failed", logger.Error(err))
		respondOAuthError(w, oauth2.NewError(oauth2.ErrServerError, "introspection failed"))
		return
	}
	respondJSON(w, http.StatusOK, introspection)
}

// UserInfo handles GET /oauth2/userinfo. It serves the claims this
// module owns for the presented bearer token: the subject, the granted
// scope, and the issuing client. Richer identity claims belong to the
// identity provider that established the login session.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oauth2"`)
		respondError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	introspection, err := h.oauth2Service.Introspect(r.Context(), strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		slog.ErrorContext(r.Context(), "userinfo lookup failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !introspection.Active {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oauth2", error="invalid_token"`)
		respondError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sub":       introspection.UserID,
		"scope":     introspection.Scope,
		"client_id": introspection.ClientID,
	})
}

func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI string, oerr *oauth2.Error) {
	params := url.Values{"error": {oerr.Code}}
	if oerr.Description != "" {
		params.Set("error_description", oerr.Description)
	}
	if oerr.State != "" {
		params.Set("state", oerr.State)
	}
	http.Redirect(w, r, addQueryParams(redirectURI, params), http.StatusFound)
}

// addQueryParams appends params to a URI, preserving any query already
// present and encoding values properly.
func addQueryParams(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func respondOAuthError(w http.ResponseWriter, oerr *oauth2.Error) {
	status := http.StatusBadRequest
	switch oerr.Code {
	case oauth2.ErrInvalidClient:
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
		status = http.StatusUnauthorized
	case oauth2.ErrServerError:
		status = http.StatusInternalServerError
	case oauth2.ErrTemporarilyUnavailable:
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, oerr)
}
