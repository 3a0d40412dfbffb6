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
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionInvalid  = errors.New("session invalid")
)

// Revocation reasons
const (
	ReasonLogout        = "logout"
	ReasonAdminRevoked  = "admin_revoked"
	ReasonPasswordReset = "password_reset"
	ReasonExpired       = "expired"
)

// Session represents a login session. JTI doubles as the jti claim of
// the session JWT and as the binding key for tokens minted under this
// session. TenantID is empty for platform-level sessions.
type Session struct {
	ID            string
	JTI           string
	UserID        string
	TenantID      string
	IPAddress     string
	UserAgent     string
	Fingerprint   string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	LastUsedAt    time.Time
	RevokedAt     *time.Time
	RevokedReason string
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsActive reports whether the session is neither revoked nor expired
func (s *Session) IsActive() bool {
	return s.RevokedAt == nil && !s.IsExpired()
}

// IsIdle checks if the session has been idle for too long
func (s *Session) IsIdle(idleTimeout time.Duration) bool {
	return time.Since(s.LastUsedAt) > idleTimeout
}

// Repository defines the interface for session persistence
type Repository interface {
	// Create creates a new session
	Create(ctx context.Context, session *Session) error

	// GetByJTI retrieves a session by its JWT id
	GetByJTI(ctx context.Context, jti string) (*Session, error)

	// Touch updates the session's last used time
	Touch(ctx context.Context, jti string, at time.Time) error

	// Revoke marks a session revoked with a reason
	Revoke(ctx context.Context, jti, reason string) error

	// RevokeAllForUser revokes every active session of a user,
	// returning how many were revoked
	RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error)

	// ListByUser retrieves a user's sessions, newest first
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// DeleteExpired purges sessions that expired before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
