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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heimdall-platform/heimdall/internal/consent"
)

// ConsentRepository implements consent.Repository
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, user_id, client_id, scopes, granted_at, updated_at, expires_at, revoked_at`

func scanConsent(row pgx.Row) (*consent.Consent, error) {
	var (
		c         consent.Consent
		rawScopes []byte
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.ClientID, &rawScopes,
		&c.GrantedAt, &c.UpdatedAt, &c.ExpiresAt, &c.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consent.ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to scan consent: %w", err)
	}
	if err := json.Unmarshal(rawScopes, &c.Scopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}
	return &c, nil
}

// Upsert creates the consent or replaces the stored record for the
// same (user, client) pair
func (r *ConsentRepository) Upsert(ctx context.Context, c *consent.Consent) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	scopes, err := json.Marshal(c.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO consents (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, client_id) DO UPDATE
		SET scopes = EXCLUDED.scopes,
		    granted_at = EXCLUDED.granted_at,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at,
		    revoked_at = EXCLUDED.revoked_at
	`,
		c.ID, c.UserID, c.ClientID, scopes,
		c.GrantedAt, c.UpdatedAt, c.ExpiresAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}

// Get retrieves the consent for a (user, client) pair
func (r *ConsentRepository) Get(ctx context.Context, userID, clientID string) (*consent.Consent, error) {
	return getWithRetry(ctx, r.db, scanConsent,
		`SELECT `+consentColumns+` FROM consents WHERE user_id = $1 AND client_id = $2`,
		userID, clientID)
}

// Revoke marks the consent for a (user, client) pair revoked
func (r *ConsentRepository) Revoke(ctx context.Context, userID, clientID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE consents SET revoked_at = now()
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consent.ErrConsentNotFound
	}
	return nil
}

// ListByUser retrieves all unrevoked consents of a user
func (r *ConsentRepository) ListByUser(ctx context.Context, userID string) ([]*consent.Consent, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY granted_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var out []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read consents: %w", err)
	}
	return out, nil
}
