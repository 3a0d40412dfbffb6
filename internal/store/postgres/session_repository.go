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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heimdall-platform/heimdall/internal/session"
)

// SessionRepository implements session.Repository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, jti, user_id, tenant_id, ip_address, user_agent, fingerprint, expires_at, created_at, last_used_at, revoked_at, revoked_reason`

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		s        session.Session
		tenantID sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.JTI, &s.UserID, &tenantID,
		&s.IPAddress, &s.UserAgent, &s.Fingerprint,
		&s.ExpiresAt, &s.CreatedAt, &s.LastUsedAt,
		&s.RevokedAt, &s.RevokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.TenantID = tenantID.String
	return &s, nil
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var tenantID sql.NullString
	if s.TenantID != "" {
		tenantID = sql.NullString{String: s.TenantID, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		s.ID, s.JTI, s.UserID, tenantID,
		s.IPAddress, s.UserAgent, s.Fingerprint,
		s.ExpiresAt, s.CreatedAt, s.LastUsedAt,
		s.RevokedAt, s.RevokedReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByJTI retrieves a session by its JWT id
func (r *SessionRepository) GetByJTI(ctx context.Context, jti string) (*session.Session, error) {
	return getWithRetry(ctx, r.db, scanSession,
		`SELECT `+sessionColumns+` FROM sessions WHERE jti = $1`, jti)
}

// Touch updates the session's last used time
func (r *SessionRepository) Touch(ctx context.Context, jti string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx,
		`UPDATE sessions SET last_used_at = $2 WHERE jti = $1`, jti, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Revoke marks a session revoked with a reason
func (r *SessionRepository) Revoke(ctx context.Context, jti, reason string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = now(), revoked_reason = $2
		WHERE jti = $1 AND revoked_at IS NULL
	`, jti, reason)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// RevokeAllForUser revokes every active session of a user
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = now(), revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser retrieves a user's sessions, newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return out, nil
}

// DeleteExpired purges sessions that expired before the cutoff
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
