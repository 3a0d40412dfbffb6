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
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

// AccessTokenRepository implements oauth2.AccessTokenRepository
type AccessTokenRepository struct {
	db *DB
}

// NewAccessTokenRepository creates a new access token repository
func NewAccessTokenRepository(db *DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

const accessTokenColumns = `id, token_hash, client_id, user_id, session_jti, scope, token_type, expires_at, revoked_at, created_at`

func scanAccessToken(row pgx.Row) (*oauth2.AccessToken, error) {
	var t oauth2.AccessToken
	err := row.Scan(
		&t.ID, &t.TokenHash, &t.ClientID, &t.UserID, &t.SessionJTI,
		&t.Scope, &t.TokenType, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to scan access token: %w", err)
	}
	return &t, nil
}

// Create creates a new access token
func (r *AccessTokenRepository) Create(ctx context.Context, t *oauth2.AccessToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO access_tokens (`+accessTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		t.ID, t.TokenHash, t.ClientID, t.UserID, t.SessionJTI,
		t.Scope, t.TokenType, t.ExpiresAt, t.RevokedAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves an access token
func (r *AccessTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*oauth2.AccessToken, error) {
	return getWithRetry(ctx, r.db, scanAccessToken,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE token_hash = $1`, tokenHash)
}

// Revoke revokes an access token
func (r *AccessTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE access_tokens SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}
	return nil
}

// RevokeByID revokes an access token by its record id
func (r *AccessTokenRepository) RevokeByID(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE access_tokens SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}
	return nil
}

// RevokeBySession revokes every access token minted under a session
func (r *AccessTokenRepository) RevokeBySession(ctx context.Context, jti string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		UPDATE access_tokens SET revoked_at = now()
		WHERE session_jti = $1 AND revoked_at IS NULL
	`, jti)
	if err != nil {
		return fmt.Errorf("failed to revoke session tokens: %w", err)
	}
	return nil
}

// DeleteExpired purges tokens that expired before the cutoff
func (r *AccessTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM access_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RefreshTokenRepository implements oauth2.RefreshTokenRepository
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, token_hash, access_token_id, client_id, user_id, session_jti, scope, expires_at, revoked_at, rotated_to, created_at`

func scanRefreshToken(row pgx.Row) (*oauth2.RefreshToken, error) {
	var t oauth2.RefreshToken
	err := row.Scan(
		&t.ID, &t.TokenHash, &t.AccessTokenID, &t.ClientID, &t.UserID,
		&t.SessionJTI, &t.Scope, &t.ExpiresAt, &t.RevokedAt, &t.RotatedTo, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to scan refresh token: %w", err)
	}
	return &t, nil
}

// Create creates a new refresh token
func (r *RefreshTokenRepository) Create(ctx context.Context, t *oauth2.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return r.insert(ctx, r.db.pool, t)
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// insert is shared by Create and Rotate
func (r *RefreshTokenRepository) insert(ctx context.Context, q execer, t *oauth2.RefreshToken) error {
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		t.ID, t.TokenHash, t.AccessTokenID, t.ClientID, t.UserID,
		t.SessionJTI, t.Scope, t.ExpiresAt, t.RevokedAt, t.RotatedTo, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*oauth2.RefreshToken, error) {
	return getWithRetry(ctx, r.db, scanRefreshToken,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
}

// Rotate atomically revokes the token behind oldHash and persists its
// successor. The conditional UPDATE makes rotation single-winner: a
// replayed refresh token finds the row already revoked and conflicts.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, successor *oauth2.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET revoked_at = now(), rotated_to = $2
			WHERE token_hash = $1 AND revoked_at IS NULL
		`, oldHash, successor.ID)
		if err != nil {
			return fmt.Errorf("failed to rotate refresh token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return oauth2.ErrRotationConflict
		}
		return r.insert(ctx, tx, successor)
	})
}

// Revoke revokes a refresh token
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}
	return nil
}

// RevokeBySession revokes every refresh token minted under a session
func (r *RefreshTokenRepository) RevokeBySession(ctx context.Context, jti string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE session_jti = $1 AND revoked_at IS NULL
	`, jti)
	if err != nil {
		return fmt.Errorf("failed to revoke session tokens: %w", err)
	}
	return nil
}

// DeleteExpired purges tokens that expired before the cutoff
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
