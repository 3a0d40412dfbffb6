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

package consent

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrConsentNotFound = errors.New("consent not found")
)

// Consent records a user's approval of a client for a set of scopes.
// One record per (user, client); granting more scopes unions into the
// existing record. A nil ExpiresAt means the consent does not expire.
type Consent struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ClientID  string     `json:"client_id"`
	Scopes    []string   `json:"scopes"`
	GrantedAt time.Time  `json:"granted_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the consent is neither revoked nor expired
func (c *Consent) IsActive(now time.Time) bool {
	if c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// Covers reports whether the consent includes every scope in the
// space-delimited requested string. An empty request is always covered.
func (c *Consent) Covers(requestedScope string) bool {
	have := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		have[s] = struct{}{}
	}
	for _, s := range strings.Fields(requestedScope) {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Repository defines the interface for consent persistence
type Repository interface {
	// Upsert creates the consent or replaces the stored record for the
	// same (user, client) pair
	Upsert(ctx context.Context, consent *Consent) error

	// Get retrieves the consent for a (user, client) pair
	Get(ctx context.Context, userID, clientID string) (*Consent, error)

	// Revoke marks the consent for a (user, client) pair revoked
	Revoke(ctx context.Context, userID, clientID string) error

	// ListByUser retrieves all unrevoked consents of a user
	ListByUser(ctx context.Context, userID string) ([]*Consent, error)
}
