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

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/id"
)

// Service manages login sessions and their JWTs
type Service struct {
	repo        Repository
	signer      *TokenSigner
	auditLogger audit.Logger
}

// NewService creates a new session service
func NewService(repo Repository, signer *TokenSigner, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, signer: signer, auditLogger: auditLogger}
}

// CreateInput carries the request context captured at login
type CreateInput struct {
	UserID      string
	TenantID    string
	IPAddress   string
	UserAgent   string
	Fingerprint string
}

// Create opens a session for an authenticated user and returns the
// record together with its signed JWT
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, string, error) {
	now := time.Now()
	sess := &Session{
		ID:          id.NewUUIDv7(),
		JTI:         id.NewUUIDv7(),
		UserID:      in.UserID,
		TenantID:    in.TenantID,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Fingerprint: in.Fingerprint,
		ExpiresAt:   now.Add(s.signer.Lifetime()),
		CreatedAt:   now,
		LastUsedAt:  now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, "", err
	}

	token, err := s.signer.Sign(sess)
	if err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeSessionCreated,
		TenantID:  in.TenantID,
		ActorID:   in.UserID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})

	return sess, token, nil
}

// Validate verifies a session JWT and checks the backing record is
// still alive. The record wins over the JWT: a revoked session fails
// here no matter how long the JWT has left.
func (s *Service) Validate(ctx context.Context, token string) (*Session, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	sess, err := s.repo.GetByJTI(ctx, claims.ID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if sess.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}

	// Best effort; a failed touch must not fail the request.
	_ = s.repo.Touch(ctx, sess.JTI, time.Now())

	return sess, nil
}

// IsSessionActive reports whether the session behind jti is alive.
// Satisfies the token introspection hook without exposing the record.
func (s *Service) IsSessionActive(ctx context.Context, jti string) (bool, error) {
	sess, err := s.repo.GetByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.IsActive(), nil
}

// Revoke ends a single session
func (s *Service) Revoke(ctx context.Context, jti, reason string) error {
	sess, err := s.repo.GetByJTI(ctx, jti)
	if err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, jti, reason); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSessionRevoked,
		TenantID: sess.TenantID,
		ActorID:  sess.UserID,
		Resource: reason,
	})
	return nil
}

// RevokeAllForUser ends every active session of a user, e.g. after a
// password reset or an administrative lockout
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSessionRevoked,
			ActorID:  userID,
			Resource: reason,
			Metadata: map[string]any{"count": n},
		})
	}
	return n, nil
}

// List returns a user's sessions, newest first
func (s *Service) List(ctx context.Context, userID string) ([]*Session, error) {
	return s.repo.ListByUser(ctx, userID)
}

// SweepExpired purges sessions that expired before the retention cutoff
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now().Add(-retention))
}
