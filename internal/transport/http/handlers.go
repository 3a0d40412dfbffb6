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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/authz"
	"github.com/heimdall-platform/heimdall/internal/consent"
	"github.com/heimdall-platform/heimdall/internal/oauth2"
	"github.com/heimdall-platform/heimdall/internal/session"
	"github.com/heimdall-platform/heimdall/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService  *tenant.Service
	authzResolver  *authz.Resolver
	oauth2Service  *oauth2.Service
	consentService *consent.Service
	sessionService *session.Service
	auditLogger    audit.Logger
	sessionConfig  SessionConfig
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	authzResolver *authz.Resolver,
	oauth2Service *oauth2.Service,
	consentService *consent.Service,
	sessionService *session.Service,
	auditLogger audit.Logger,
	sessionConfig SessionConfig,
) *Handler {
	if sessionConfig.CookieName == "" {
		sessionConfig.CookieName = "heimdall_session"
	}
	if sessionConfig.CookiePath == "" {
		sessionConfig.CookiePath = "/"
	}
	return &Handler{
		tenantService:  tenantService,
		authzResolver:  authzResolver,
		oauth2Service:  oauth2Service,
		consentService: consentService,
		sessionService: sessionService,
		auditLogger:    auditLogger,
		sessionConfig:  sessionConfig,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.HealthCheck)

	// OAuth2 protocol surface
	r.Route("/oauth2", func(r chi.Router) {
		// RFC 6749 Section 4.1.1: the authorize endpoint needs a logged
		// in user; token, revoke, and introspect authenticate the client.
		r.With(h.AuthMiddleware).Get("/authorize", h.Authorize)
		r.Post("/token", h.Token)
		r.Post("/revoke", h.Revoke)
		r.Post("/introspect", h.Introspect)
		r.Get("/userinfo", h.UserInfo)
		r.Post("/userinfo", h.UserInfo)
	})

	// Admin and self-service API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", h.CreateTenant)

			r.Route("/{tenantID}", func(r chi.Router) {
				r.With(h.RequirePermission(authz.ActionRead, "tenant")).Get("/", h.GetTenant)
				r.With(h.RequirePermission(authz.ActionRead, "tenant")).Get("/children", h.ListChildren)
				r.With(h.RequirePermission(authz.ActionRead, "tenant")).Get("/ancestors", h.GetAncestors)
				r.With(h.RequirePermission(authz.ActionRead, "tenant")).Get("/descendants", h.GetDescendants)
				r.With(h.RequirePermission(authz.ActionManage, "tenant")).Post("/reparent", h.ReparentTenant)
				r.With(h.RequirePermission(authz.ActionManage, "tenant")).Post("/archive", h.ArchiveTenant)
				r.With(h.RequirePermission(authz.ActionManage, "tenant")).Post("/suspend", h.SuspendTenant)
				r.With(h.RequirePermission(authz.ActionManage, "tenant")).Post("/activate", h.ActivateTenant)

				r.Route("/members", func(r chi.Router) {
					r.With(h.RequirePermission(authz.ActionRead, "membership")).Get("/", h.ListMembers)
					r.With(h.RequirePermission(authz.ActionInvite, "membership")).Post("/", h.AddMember)
					r.Post("/accept", h.AcceptInvite)
					r.With(h.RequirePermission(authz.ActionManage, "membership")).Put("/{userID}", h.UpdateMemberRole)
					r.With(h.RequirePermission(authz.ActionManage, "membership")).Delete("/{userID}", h.RemoveMember)
				})

				r.Route("/grants", func(r chi.Router) {
					r.With(h.RequirePermission(authz.ActionAdmin, "grant")).Get("/", h.ListGrants)
					r.With(h.RequirePermission(authz.ActionAdmin, "grant")).Post("/", h.CreateGrant)
					r.With(h.RequirePermission(authz.ActionAdmin, "grant")).Delete("/{grantID}", h.RevokeGrant)
				})

				r.With(h.RequirePermission(authz.ActionAdmin, "oauth2_client")).Route("/clients", func(r chi.Router) {
					r.Get("/", h.ListClients)
					r.Post("/", h.RegisterClient)
					r.Post("/{clientID}/suspend", h.SuspendClient)
					r.Post("/{clientID}/revoke", h.RevokeClient)
				})

				r.Get("/check", h.CheckPermission)
			})
		})

		r.Get("/me/memberships", h.ListMyMemberships)

		r.Route("/me/consents", func(r chi.Router) {
			r.Get("/", h.ListConsents)
			r.Post("/", h.GrantConsent)
			r.Delete("/{clientID}", h.RevokeConsent)
		})

		r.Route("/me/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Delete("/{jti}", h.RevokeSession)
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    token,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   maxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
