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

package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner mints and verifies session JWTs. The JWT is a pointer to
// the server-side session record, not a self-contained credential:
// verification alone never grants access, the record's liveness does.
type TokenSigner struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

// NewTokenSigner creates a signer for HS256 session tokens
func NewTokenSigner(secret []byte, issuer string, lifetime time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, issuer: issuer, lifetime: lifetime}
}

// Claims carried by a session JWT
type Claims struct {
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Sign mints a session JWT for the given session record
func (ts *TokenSigner) Sign(s *Session) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: s.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.JTI,
			Subject:   s.UserID,
			Issuer:    ts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session JWT, returning its claims
func (ts *TokenSigner) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.secret, nil
	},
		jwt.WithIssuer(ts.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ID == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// Lifetime returns the configured session lifetime
func (ts *TokenSigner) Lifetime() time.Duration {
	return ts.lifetime
}
