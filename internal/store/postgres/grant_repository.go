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

	"github.com/heimdall-platform/heimdall/internal/authz"
)

// GrantRepository implements authz.GrantRepository
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

const grantColumns = `id, user_id, tenant_id, resource_type, resource_id, actions, conditions, block_inheritance, expires_at, granted_by, created_at, revoked_at`

func scanGrant(row pgx.Row) (*authz.Grant, error) {
	var (
		g             authz.Grant
		rawActions    []byte
		rawConditions []byte
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.TenantID, &g.ResourceType, &g.ResourceID,
		&rawActions, &rawConditions, &g.BlockInheritance,
		&g.ExpiresAt, &g.GrantedBy, &g.CreatedAt, &g.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to scan grant: %w", err)
	}
	if err := json.Unmarshal(rawActions, &g.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}
	if len(rawConditions) > 0 {
		if err := json.Unmarshal(rawConditions, &g.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}
	return &g, nil
}

// Create persists a new grant
func (r *GrantRepository) Create(ctx context.Context, g *authz.Grant) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	actions, err := json.Marshal(g.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	var conditions []byte
	if g.Conditions != nil {
		conditions, err = json.Marshal(g.Conditions)
		if err != nil {
			return fmt.Errorf("failed to marshal conditions: %w", err)
		}
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO permission_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		g.ID, g.UserID, g.TenantID, g.ResourceType, g.ResourceID,
		actions, conditions, g.BlockInheritance,
		g.ExpiresAt, g.GrantedBy, g.CreatedAt, g.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

// GetByID retrieves a grant
func (r *GrantRepository) GetByID(ctx context.Context, id string) (*authz.Grant, error) {
	return getWithRetry(ctx, r.db, scanGrant,
		`SELECT `+grantColumns+` FROM permission_grants WHERE id = $1`, id)
}

// Revoke marks a grant revoked
func (r *GrantRepository) Revoke(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE permission_grants SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrGrantNotFound
	}
	return nil
}

// ListForUser retrieves a user's unrevoked grants scoped to any of the
// given tenants
func (r *GrantRepository) ListForUser(ctx context.Context, userID string, tenantIDs []string) ([]*authz.Grant, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+grantColumns+` FROM permission_grants
		WHERE user_id = $1 AND tenant_id = ANY($2) AND revoked_at IS NULL
		ORDER BY created_at
	`, userID, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return collectGrants(rows)
}

// ListByTenant retrieves all unrevoked grants in a tenant
func (r *GrantRepository) ListByTenant(ctx context.Context, tenantID string) ([]*authz.Grant, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+grantColumns+` FROM permission_grants
		WHERE tenant_id = $1 AND revoked_at IS NULL
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return collectGrants(rows)
}

func collectGrants(rows pgx.Rows) ([]*authz.Grant, error) {
	var out []*authz.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}
	return out, nil
}
