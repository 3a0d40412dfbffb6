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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `client_id, client_secret_hash, name, tenant_id, redirect_uris, allowed_scopes, grant_types, require_pkce, trusted, status, access_token_lifetime, refresh_token_lifetime, created_at, updated_at, revoked_at`

func scanClient(row pgx.Row) (*oauth2.Client, error) {
	var (
		c             oauth2.Client
		tenantID      sql.NullString
		redirectURIs  []byte
		allowedScopes []byte
		grantTypes    []byte
	)
	err := row.Scan(
		&c.ClientID, &c.ClientSecretHash, &c.Name, &tenantID,
		&redirectURIs, &allowedScopes, &grantTypes,
		&c.RequirePKCE, &c.Trusted, &c.Status,
		&c.AccessTokenLifetime, &c.RefreshTokenLifetime,
		&c.CreatedAt, &c.UpdatedAt, &c.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	c.TenantID = tenantID.String

	if err := json.Unmarshal(redirectURIs, &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redirect URIs: %w", err)
	}
	if err := json.Unmarshal(allowedScopes, &c.AllowedScopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed scopes: %w", err)
	}
	if err := json.Unmarshal(grantTypes, &c.GrantTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant types: %w", err)
	}
	return &c, nil
}

// Create creates a new OAuth2 client
func (r *ClientRepository) Create(ctx context.Context, c *oauth2.Client) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	redirectURIs, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}
	allowedScopes, err := json.Marshal(c.AllowedScopes)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed scopes: %w", err)
	}
	grantTypes, err := json.Marshal(c.GrantTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal grant types: %w", err)
	}

	var tenantID sql.NullString
	if c.TenantID != "" {
		tenantID = sql.NullString{String: c.TenantID, Valid: true}
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		c.ClientID, c.ClientSecretHash, c.Name, tenantID,
		redirectURIs, allowedScopes, grantTypes,
		c.RequirePKCE, c.Trusted, c.Status,
		c.AccessTokenLifetime, c.RefreshTokenLifetime,
		c.CreatedAt, c.UpdatedAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetByClientID retrieves a client by client_id
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	return getWithRetry(ctx, r.db, scanClient,
		`SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1`, clientID)
}

// Update updates client information
func (r *ClientRepository) Update(ctx context.Context, c *oauth2.Client) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	redirectURIs, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}
	allowedScopes, err := json.Marshal(c.AllowedScopes)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed scopes: %w", err)
	}
	grantTypes, err := json.Marshal(c.GrantTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal grant types: %w", err)
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients
		SET name = $2, redirect_uris = $3, allowed_scopes = $4, grant_types = $5,
		    require_pkce = $6, trusted = $7, status = $8,
		    access_token_lifetime = $9, refresh_token_lifetime = $10,
		    updated_at = $11, revoked_at = $12
		WHERE client_id = $1
	`,
		c.ClientID, c.Name, redirectURIs, allowedScopes, grantTypes,
		c.RequirePKCE, c.Trusted, c.Status,
		c.AccessTokenLifetime, c.RefreshTokenLifetime,
		c.UpdatedAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// ListByTenant retrieves all clients owned by a tenant
func (r *ClientRepository) ListByTenant(ctx context.Context, tenantID string) ([]*oauth2.Client, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM oauth2_clients WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []*oauth2.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read clients: %w", err)
	}
	return out, nil
}
