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
)

// Domain errors (Internal)
var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientInactive      = errors.New("client is not active")
	ErrDomainInvalidClient = errors.New("invalid client credentials")
	ErrCodeNotFound        = errors.New("authorization code not found")
	ErrCodeConsumed        = errors.New("authorization code already consumed")
	ErrCodeExpired         = errors.New("authorization code expired")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrRotationConflict    = errors.New("refresh token already rotated")
)

// Grant types
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Client status
const (
	ClientStatusActive    = "active"
	ClientStatusSuspended = "suspended"
	ClientStatusRevoked   = "revoked"
)

// Client represents a registered OAuth2 client application. Trusted
// clients bypass the consent step entirely.
type Client struct {
	ClientID             string     `json:"client_id"`
	ClientSecretHash     string     `json:"-"`
	Name                 string     `json:"name"`
	TenantID             string     `json:"tenant_id,omitempty"`
	RedirectURIs         []string   `json:"redirect_uris"`
	AllowedScopes        []string   `json:"allowed_scopes"`
	GrantTypes           []string   `json:"grant_types"`
	RequirePKCE          bool       `json:"require_pkce"`
	Trusted              bool       `json:"trusted"`
	Status               string     `json:"status"`
	AccessTokenLifetime  int        `json:"access_token_lifetime"`
	RefreshTokenLifetime int        `json:"refresh_token_lifetime"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the client may take part in OAuth2 flows
func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// ValidateRedirectURI checks the redirect URI against the allow-list.
// Exact string match only; prefix or wildcard matching opens the door
// to open-redirect attacks.
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// ValidateScope checks if the requested scope is allowed for this client
func (c *Client) ValidateScope(requestedScope string) bool {
	if requestedScope == "" {
		return true
	}

	requestedScopes := strings.Fields(requestedScope)
	for _, reqScope := range requestedScopes {
		allowed := false
		for _, allowedScope := range c.AllowedScopes {
			if allowedScope == reqScope || allowedScope == "*" {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// AllowsGrantType reports whether the client may use the grant type
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AuthorizationCode represents a short-lived, single-use code. The
// state machine is issued -> {consumed, expired, revoked}; UsedAt and
// RevokedAt are mutually exclusive with the unused state and with each
// other.
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionJTI          string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	RevokedAt           *time.Time
	CreatedAt           time.Time
}

// IsExpired checks if the authorization code has expired
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// AccessToken represents an OAuth2 access token. Only the SHA-256 hash
// of the token is ever stored.
type AccessToken struct {
	ID         string
	TokenHash  string
	ClientID   string
	UserID     string
	SessionJTI string
	Scope      string
	TokenType  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// IsExpired checks if the access token has expired
func (a *AccessToken) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// RefreshToken represents an OAuth2 refresh token. Rotation-on-use
// revokes a refresh token the moment it is exchanged; RotatedTo records
// its successor for audit.
type RefreshToken struct {
	ID            string
	TokenHash     string
	AccessTokenID string
	ClientID      string
	UserID        string
	SessionJTI    string
	Scope         string
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RotatedTo     string
	CreatedAt     time.Time
}

// IsExpired checks if the refresh token has expired
func (r *RefreshToken) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// ClientRepository defines the interface for OAuth2 client persistence
type ClientRepository interface {
	// Create creates a new OAuth2 client
	Create(ctx context.Context, client *Client) error

	// GetByClientID retrieves a client by client_id
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// Update updates client information
	Update(ctx context.Context, client *Client) error

	// ListByTenant retrieves all clients owned by a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*Client, error)
}

// AuthorizationCodeRepository defines the interface for authorization
// code persistence
type AuthorizationCodeRepository interface {
	// Create creates a new authorization code
	Create(ctx context.Context, code *AuthorizationCode) error

	// GetByCode retrieves an authorization code
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// Consume atomically transitions the code from issued to consumed.
	// Exactly one concurrent caller wins; the rest get ErrCodeConsumed.
	Consume(ctx context.Context, code string) error

	// Revoke marks a still-unused code revoked
	Revoke(ctx context.Context, code string) error

	// DeleteExpired purges codes that expired before the cutoff,
	// returning how many were removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccessTokenRepository defines the interface for access token persistence
type AccessTokenRepository interface {
	// Create creates a new access token
	Create(ctx context.Context, token *AccessToken) error

	// GetByTokenHash retrieves an access token
	GetByTokenHash(ctx context.Context, tokenHash string) (*AccessToken, error)

	// Revoke revokes an access token
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeByID revokes an access token by its record id. Used when
	// cascading a refresh token revocation.
	RevokeByID(ctx context.Context, id string) error

	// DeleteExpired purges tokens that expired before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefreshTokenRepository defines the interface for refresh token persistence
type RefreshTokenRepository interface {
	// Create creates a new refresh token
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a refresh token
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate atomically revokes the refresh token identified by oldHash
	// and persists its successor. Exactly one concurrent caller wins;
	// the rest get ErrRotationConflict.
	Rotate(ctx context.Context, oldHash string, successor *RefreshToken) error

	// Revoke revokes a refresh token
	Revoke(ctx context.Context, tokenHash string) error

	// DeleteExpired purges tokens that expired before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
