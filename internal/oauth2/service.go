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

package oauth2

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/id"
)

// SessionChecker reports whether the login session a token was minted
// under is still alive. Introspection consults it so that a browser
// logout kills API access bound to that session.
type SessionChecker interface {
	IsSessionActive(ctx context.Context, jti string) (bool, error)
}

// Service provides OAuth2 business logic
type Service struct {
	clientRepo  ClientRepository
	codeRepo    AuthorizationCodeRepository
	accessRepo  AccessTokenRepository
	refreshRepo RefreshTokenRepository
	hasher      *SecretHasher
	sessions    SessionChecker
	auditLogger audit.Logger

	authCodeLifetime     time.Duration
	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration
}

// Config holds the token lifetimes the service issues by default.
// Per-client lifetimes override these.
type Config struct {
	AuthCodeLifetime     time.Duration
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
}

// NewService creates a new OAuth2 service
func NewService(
	clientRepo ClientRepository,
	codeRepo AuthorizationCodeRepository,
	accessRepo AccessTokenRepository,
	refreshRepo RefreshTokenRepository,
	hasher *SecretHasher,
	sessions SessionChecker,
	auditLogger audit.Logger,
	cfg Config,
) *Service {
	if cfg.AuthCodeLifetime <= 0 {
		cfg.AuthCodeLifetime = 5 * time.Minute
	}
	if cfg.AccessTokenLifetime <= 0 {
		cfg.AccessTokenLifetime = 1 * time.Hour
	}
	if cfg.RefreshTokenLifetime <= 0 {
		cfg.RefreshTokenLifetime = 30 * 24 * time.Hour
	}

	return &Service{
		clientRepo:           clientRepo,
		codeRepo:             codeRepo,
		accessRepo:           accessRepo,
		refreshRepo:          refreshRepo,
		hasher:               hasher,
		sessions:             sessions,
		auditLogger:          auditLogger,
		authCodeLifetime:     cfg.AuthCodeLifetime,
		accessTokenLifetime:  cfg.AccessTokenLifetime,
		refreshTokenLifetime: cfg.RefreshTokenLifetime,
	}
}

// RegisterClientInput carries the fields for client registration
type RegisterClientInput struct {
	Name                 string
	TenantID             string
	RedirectURIs         []string
	AllowedScopes        []string
	GrantTypes           []string
	RequirePKCE          bool
	Trusted              bool
	Public               bool
	AccessTokenLifetime  int
	RefreshTokenLifetime int
	ActorID              string
}

// RegisterClient registers a new OAuth2 client. For confidential
// clients the plaintext secret is returned exactly once; only its
// Argon2id hash is stored.
func (s *Service) RegisterClient(ctx context.Context, input RegisterClientInput) (*Client, string, error) {
	if input.Name == "" {
		return nil, "", errors.New("client name is required")
	}
	if len(input.RedirectURIs) == 0 {
		return nil, "", errors.New("at least one redirect URI is required")
	}

	clientID, err := GenerateClientID()
	if err != nil {
		return nil, "", err
	}

	var secret, secretHash string
	if !input.Public {
		secret, err = GenerateToken()
		if err != nil {
			return nil, "", err
		}
		secretHash, err = s.hasher.Hash(secret)
		if err != nil {
			return nil, "", err
		}
	}

	grantTypes := input.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}
	}

	allowsRefresh := false
	for _, gt := range grantTypes {
		if gt == GrantTypeRefreshToken {
			allowsRefresh = true
		}
	}
	accessLifetime, refreshLifetime := s.tokenLifetimes(input.AccessTokenLifetime, input.RefreshTokenLifetime)
	if allowsRefresh && refreshLifetime <= accessLifetime {
		return nil, "", errors.New("refresh token lifetime must exceed access token lifetime")
	}

	now := time.Now()
	client := &Client{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		Name:             input.Name,
		TenantID:         input.TenantID,
		RedirectURIs:     input.RedirectURIs,
		AllowedScopes:    input.AllowedScopes,
		GrantTypes:       grantTypes,
		// Public clients cannot keep a secret, so PKCE is their only
		// code-interception defense and is not optional for them.
		RequirePKCE:          input.RequirePKCE || input.Public,
		Trusted:              input.Trusted,
		Status:               ClientStatusActive,
		AccessTokenLifetime:  input.AccessTokenLifetime,
		RefreshTokenLifetime: input.RefreshTokenLifetime,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientRegistered,
		TenantID: input.TenantID,
		ActorID:  input.ActorID,
		Resource: client.ClientID,
		Metadata: map[string]any{"name": client.Name, "public": input.Public},
	})

	return client, secret, nil
}

// SuspendClient temporarily disables a client
func (s *Service) SuspendClient(ctx context.Context, clientID, actorID string) error {
	return s.setClientStatus(ctx, clientID, actorID, ClientStatusSuspended, audit.TypeClientSuspended)
}

// RevokeClient permanently disables a client
func (s *Service) RevokeClient(ctx context.Context, clientID, actorID string) error {
	return s.setClientStatus(ctx, clientID, actorID, ClientStatusRevoked, audit.TypeClientRevoked)
}

func (s *Service) setClientStatus(ctx context.Context, clientID, actorID, status, eventType string) error {
	client, err := s.clientRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}

	now := time.Now()
	client.Status = status
	client.UpdatedAt = now
	if status == ClientStatusRevoked {
		client.RevokedAt = &now
	}

	if err := s.clientRepo.Update(ctx, client); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: client.TenantID,
		ActorID:  actorID,
		Resource: client.ClientID,
	})
	return nil
}

// GetClient retrieves a client by its public identifier
func (s *Service) GetClient(ctx context.Context, clientID string) (*Client, error) {
	return s.clientRepo.GetByClientID(ctx, clientID)
}

// ListClients lists the clients owned by a tenant
func (s *Service) ListClients(ctx context.Context, tenantID string) ([]*Client, error) {
	return s.clientRepo.ListByTenant(ctx, tenantID)
}

// Authenticate verifies client credentials. Public clients (no stored
// secret) authenticate by client_id alone and must not present a
// secret. Failures are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.clientRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, ErrDomainInvalidClient
	}
	if !client.IsActive() {
		return nil, ErrClientInactive
	}

	if client.ClientSecretHash == "" {
		if clientSecret != "" {
			return nil, ErrDomainInvalidClient
		}
		return client, nil
	}

	ok, err := s.hasher.Verify(clientSecret, client.ClientSecretHash)
	if err != nil || !ok {
		return nil, ErrDomainInvalidClient
	}
	return client, nil
}

// AuthorizeRequest represents an OAuth2 authorization request
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest represents an OAuth2 token request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse represents an OAuth2 token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ValidateAuthorizeRequest validates an authorization request. Errors
// concerning client identity or the redirect URI must NOT be redirected
// back to the presented URI; the returned *Error carries no state in
// that case and the handler renders it directly.
func (s *Service) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Client, *Error) {
	if req.ClientID == "" {
		return nil, NewError(ErrInvalidRequest, "client_id is required")
	}

	client, err := s.clientRepo.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "unknown client")
	}
	if !client.IsActive() {
		return nil, NewError(ErrUnauthorizedClient, "client is not active")
	}

	if req.RedirectURI == "" || !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "invalid redirect_uri")
	}

	// From here on errors are safe to deliver via redirect.
	if req.ResponseType != "code" {
		return client, NewError(ErrUnsupportedGrantType, "only response_type=code is supported").WithState(req.State)
	}
	if !client.AllowsGrantType(GrantTypeAuthorizationCode) {
		return client, NewError(ErrUnauthorizedClient, "client may not use the authorization code grant").WithState(req.State)
	}
	if !client.ValidateScope(req.Scope) {
		return client, NewError(ErrInvalidScope, "requested scope exceeds client allowance").WithState(req.State)
	}

	if req.CodeChallenge == "" {
		if client.RequirePKCE {
			return client, NewError(ErrInvalidRequest, "code_challenge is required for this client").WithState(req.State)
		}
	} else {
		method := req.CodeChallengeMethod
		if method == "" {
			method = CodeChallengeMethodPlain
		}
		if !ValidCodeChallengeMethod(method) {
			return client, NewError(ErrInvalidRequest, "unsupported code_challenge_method").WithState(req.State)
		}
	}

	return client, nil
}

// CreateAuthorizationCode issues a single-use authorization code bound
// to the validated request, the authenticated user, and their session
func (s *Service) CreateAuthorizationCode(ctx context.Context, req *AuthorizeRequest, userID, sessionJTI string) (*AuthorizationCode, error) {
	raw, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = CodeChallengeMethodPlain
	}

	code := &AuthorizationCode{
		ID:                  id.NewUUIDv7(),
		Code:                raw,
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		SessionJTI:          sessionJTI,
		ExpiresAt:           time.Now().Add(s.authCodeLifetime),
		CreatedAt:           time.Now(),
	}

	if err := s.codeRepo.Create(ctx, code); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  userID,
		Resource: req.ClientID,
	})

	return code, nil
}

// ExchangeCodeForToken implements the authorization_code grant. The
// code is validated first, then consumed atomically; under concurrent
// replay exactly one caller receives tokens. Every failure surfaces as
// undifferentiated invalid_grant so a caller cannot probe which check
// tripped.
func (s *Service) ExchangeCodeForToken(ctx context.Context, req *TokenRequest) (*TokenResponse, *Error) {
	client, err := s.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	if !client.AllowsGrantType(GrantTypeAuthorizationCode) {
		return nil, NewError(ErrUnauthorizedClient, "grant type not allowed for this client")
	}

	code, err := s.codeRepo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	if code.ClientID != client.ClientID ||
		code.UsedAt != nil ||
		code.RevokedAt != nil ||
		code.IsExpired() ||
		code.RedirectURI != req.RedirectURI {
		s.auditReplayIfConsumed(ctx, code, req.ClientID)
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	if code.CodeChallenge != "" {
		if !VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
			return nil, NewError(ErrInvalidGrant, "invalid authorization code")
		}
	} else if client.RequirePKCE {
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	// Atomic consume: one winner under concurrent replay.
	if err := s.codeRepo.Consume(ctx, req.Code); err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeCodeReplayed,
			ActorID:  code.UserID,
			Resource: client.ClientID,
		})
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCodeConsumed,
		ActorID:  code.UserID,
		Resource: client.ClientID,
	})

	resp, err := s.issueTokenPair(ctx, client, code.UserID, code.SessionJTI, code.Scope)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to issue tokens")
	}
	return resp, nil
}

func (s *Service) auditReplayIfConsumed(ctx context.Context, code *AuthorizationCode, clientID string) {
	if code.UsedAt == nil {
		return
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCodeReplayed,
		ActorID:  code.UserID,
		Resource: clientID,
	})
}

// RefreshAccessToken implements the refresh_token grant with rotation:
// the presented token is revoked and a successor issued in one atomic
// step, so a stolen-and-replayed refresh token loses the race at most
// once and then fails.
func (s *Service) RefreshAccessToken(ctx context.Context, req *TokenRequest) (*TokenResponse, *Error) {
	client, err := s.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	if !client.AllowsGrantType(GrantTypeRefreshToken) {
		return nil, NewError(ErrUnauthorizedClient, "grant type not allowed for this client")
	}

	oldHash := HashToken(req.RefreshToken)
	old, err := s.refreshRepo.GetByTokenHash(ctx, oldHash)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "invalid refresh token")
	}
	if old.ClientID != client.ClientID || old.RevokedAt != nil || old.IsExpired() {
		return nil, NewError(ErrInvalidGrant, "invalid refresh token")
	}

	// Scope narrowing is allowed, widening is not.
	scope := old.Scope
	if req.Scope != "" {
		if !scopeSubset(req.Scope, old.Scope) {
			return nil, NewError(ErrInvalidScope, "requested scope exceeds original grant")
		}
		scope = req.Scope
	}

	resp, access, refresh, err := s.buildTokenPair(client, old.UserID, old.SessionJTI, scope)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to issue tokens")
	}
	if err := s.refreshRepo.Rotate(ctx, oldHash, refresh); err != nil {
		return nil, NewError(ErrInvalidGrant, "invalid refresh token")
	}
	if err := s.accessRepo.Create(ctx, access); err != nil {
		return nil, NewError(ErrServerError, "failed to issue tokens")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		ActorID:  old.UserID,
		Resource: client.ClientID,
	})

	return resp, nil
}

func (s *Service) issueTokenPair(ctx context.Context, client *Client, userID, sessionJTI, scope string) (*TokenResponse, error) {
	resp, access, refresh, err := s.buildTokenPair(client, userID, sessionJTI, scope)
	if err != nil {
		return nil, err
	}
	if err := s.accessRepo.Create(ctx, access); err != nil {
		return nil, err
	}
	if refresh != nil {
		if err := s.refreshRepo.Create(ctx, refresh); err != nil {
			return nil, err
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  userID,
		Resource: client.ClientID,
	})
	return resp, nil
}

// tokenLifetimes resolves effective lifetimes from per-client overrides
// falling back to the service defaults
func (s *Service) tokenLifetimes(accessOverride, refreshOverride int) (time.Duration, time.Duration) {
	access := s.accessTokenLifetime
	if accessOverride > 0 {
		access = time.Duration(accessOverride) * time.Second
	}
	refresh := s.refreshTokenLifetime
	if refreshOverride > 0 {
		refresh = time.Duration(refreshOverride) * time.Second
	}
	return access, refresh
}

// buildTokenPair mints an access token and, when the client is
// registered for the refresh_token grant, a paired refresh token.
// Clients without that grant get a nil refresh token and no
// refresh_token field on the wire.
func (s *Service) buildTokenPair(client *Client, userID, sessionJTI, scope string) (*TokenResponse, *AccessToken, *RefreshToken, error) {
	accessLifetime, refreshLifetime := s.tokenLifetimes(client.AccessTokenLifetime, client.RefreshTokenLifetime)

	rawAccess, err := GenerateToken()
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now()
	access := &AccessToken{
		ID:         id.NewUUIDv7(),
		TokenHash:  HashToken(rawAccess),
		ClientID:   client.ClientID,
		UserID:     userID,
		SessionJTI: sessionJTI,
		Scope:      scope,
		TokenType:  "Bearer",
		ExpiresAt:  now.Add(accessLifetime),
		CreatedAt:  now,
	}
	resp := &TokenResponse{
		AccessToken: rawAccess,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessLifetime.Seconds()),
		Scope:       scope,
	}

	if !client.AllowsGrantType(GrantTypeRefreshToken) {
		return resp, access, nil, nil
	}

	// Registration rejects inverted lifetimes; re-check here so a
	// skewed service default can never mint a refresh token that
	// expires before its paired access token.
	if refreshLifetime <= accessLifetime {
		return nil, nil, nil, errors.New("refresh token lifetime must exceed access token lifetime")
	}

	rawRefresh, err := GenerateToken()
	if err != nil {
		return nil, nil, nil, err
	}
	refresh := &RefreshToken{
		ID:            id.NewUUIDv7(),
		TokenHash:     HashToken(rawRefresh),
		AccessTokenID: access.ID,
		ClientID:      client.ClientID,
		UserID:        userID,
		SessionJTI:    sessionJTI,
		Scope:         scope,
		ExpiresAt:     now.Add(refreshLifetime),
		CreatedAt:     now,
	}
	resp.RefreshToken = rawRefresh
	return resp, access, refresh, nil
}

// RevokeToken implements RFC 7009. The token may be an access or a
// refresh token; revoking a refresh token cascades to its paired access
// token. Per the RFC an unknown token is not an error.
func (s *Service) RevokeToken(ctx context.Context, token, clientID, clientSecret string) *Error {
	client, err := s.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return NewError(ErrInvalidClient, "client authentication failed")
	}

	hash := HashToken(token)

	if rt, err := s.refreshRepo.GetByTokenHash(ctx, hash); err == nil {
		if rt.ClientID != client.ClientID {
			return nil
		}
		_ = s.refreshRepo.Revoke(ctx, hash)
		if rt.AccessTokenID != "" {
			_ = s.accessRepo.RevokeByID(ctx, rt.AccessTokenID)
		}
		s.auditRevocation(ctx, rt.UserID, client.ClientID)
		return nil
	}

	if at, err := s.accessRepo.GetByTokenHash(ctx, hash); err == nil {
		if at.ClientID != client.ClientID {
			return nil
		}
		_ = s.accessRepo.Revoke(ctx, hash)
		s.auditRevocation(ctx, at.UserID, client.ClientID)
	}

	return nil
}

func (s *Service) auditRevocation(ctx context.Context, userID, clientID string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  userID,
		Resource: clientID,
	})
}

// Introspection is the result of validating a bearer token (RFC 7662)
type Introspection struct {
	Active     bool   `json:"active"`
	Scope      string `json:"scope,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	UserID     string `json:"sub,omitempty"`
	TokenType  string `json:"token_type,omitempty"`
	ExpiresAt  int64  `json:"exp,omitempty"`
	IssuedAt   int64  `json:"iat,omitempty"`
	SessionJTI string `json:"-"`
}

// Introspect validates an access token. A token whose originating login
// session has been revoked is reported inactive even if the token
// itself has not expired.
func (s *Service) Introspect(ctx context.Context, token string) (*Introspection, error) {
	inactive := &Introspection{Active: false}

	at, err := s.accessRepo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return inactive, nil
		}
		return nil, err
	}
	if at.RevokedAt != nil || at.IsExpired() {
		return inactive, nil
	}

	if at.SessionJTI != "" && s.sessions != nil {
		alive, err := s.sessions.IsSessionActive(ctx, at.SessionJTI)
		if err != nil {
			return nil, err
		}
		if !alive {
			return inactive, nil
		}
	}

	return &Introspection{
		Active:     true,
		Scope:      at.Scope,
		ClientID:   at.ClientID,
		UserID:     at.UserID,
		TokenType:  at.TokenType,
		ExpiresAt:  at.ExpiresAt.Unix(),
		IssuedAt:   at.CreatedAt.Unix(),
		SessionJTI: at.SessionJTI,
	}, nil
}

// RevokeSessionTokens revokes every token minted under a session.
// Called on logout so bearer tokens do not outlive the login they came
// from.
func (s *Service) RevokeSessionTokens(ctx context.Context, sessionJTI string) error {
	// Best effort over both stores; introspection also checks session
	// liveness, so a miss here only delays the cutoff.
	if r, ok := s.refreshRepo.(interface {
		RevokeBySession(ctx context.Context, jti string) error
	}); ok {
		if err := r.RevokeBySession(ctx, sessionJTI); err != nil {
			return err
		}
	}
	if r, ok := s.accessRepo.(interface {
		RevokeBySession(ctx context.Context, jti string) error
	}); ok {
		if err := r.RevokeBySession(ctx, sessionJTI); err != nil {
			return err
		}
	}
	return nil
}

// scopeSubset reports whether every scope in requested appears in granted
func scopeSubset(requested, granted string) bool {
	have := make(map[string]struct{})
	for _, sc := range strings.Fields(granted) {
		have[sc] = struct{}{}
	}
	for _, sc := range strings.Fields(requested) {
		if _, ok := have[sc]; !ok {
			return false
		}
	}
	return true
}

// SweepExpired purges expired codes and tokens older than the retention
// cutoff, returning the total rows removed
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	var total int64

	n, err := s.codeRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.accessRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.refreshRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return total, err
	}
	total += n

	return total, nil
}
