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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

// AuthorizationCodeRepository implements oauth2.AuthorizationCodeRepository
type AuthorizationCodeRepository struct {
	db *DB
}

// NewAuthorizationCodeRepository creates a new authorization code repository
func NewAuthorizationCodeRepository(db *DB) *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{db: db}
}

const codeColumns = `id, code, client_id, user_id, redirect_uri, scope, state, nonce, code_challenge, code_challenge_method, session_jti, expires_at, used_at, revoked_at, created_at`

func scanCode(row pgx.Row) (*oauth2.AuthorizationCode, error) {
	var c oauth2.AuthorizationCode
	err := row.Scan(
		&c.ID, &c.Code, &c.ClientID, &c.UserID, &c.RedirectURI,
		&c.Scope, &c.State, &c.Nonce,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.SessionJTI,
		&c.ExpiresAt, &c.UsedAt, &c.RevokedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to scan authorization code: %w", err)
	}
	return &c, nil
}

// Create creates a new authorization code
func (r *AuthorizationCodeRepository) Create(ctx context.Context, c *oauth2.AuthorizationCode) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO authorization_codes (`+codeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		c.ID, c.Code, c.ClientID, c.UserID, c.RedirectURI,
		c.Scope, c.State, c.Nonce,
		c.CodeChallenge, c.CodeChallengeMethod, c.SessionJTI,
		c.ExpiresAt, c.UsedAt, c.RevokedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// GetByCode retrieves an authorization code
func (r *AuthorizationCodeRepository) GetByCode(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	return getWithRetry(ctx, r.db, scanCode,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code = $1`, code)
}

// Consume atomically transitions the code from issued to consumed. The
// conditional UPDATE is the single-use guarantee: under concurrent
// replay exactly one statement matches the unused row.
func (r *AuthorizationCodeRepository) Consume(ctx context.Context, code string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE authorization_codes SET used_at = now()
		WHERE code = $1 AND used_at IS NULL AND revoked_at IS NULL
	`, code)
	if err != nil {
		return fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrCodeConsumed
	}
	return nil
}

// Revoke marks a still-unused code revoked
func (r *AuthorizationCodeRepository) Revoke(ctx context.Context, code string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE authorization_codes SET revoked_at = now()
		WHERE code = $1 AND used_at IS NULL AND revoked_at IS NULL
	`, code)
	if err != nil {
		return fmt.Errorf("failed to revoke authorization code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrCodeNotFound
	}
	return nil
}

// DeleteExpired purges codes that expired before the cutoff
func (r *AuthorizationCodeRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
