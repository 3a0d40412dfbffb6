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
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heimdall-platform/heimdall/internal/tenant"
)

// MembershipRepository implements tenant.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipColumns = `tenant_id, user_id, role, permissions, invited_by, invited_at, joined_at, updated_at`

func scanMembership(row pgx.Row) (*tenant.Membership, error) {
	var (
		m   tenant.Membership
		raw []byte
	)
	err := row.Scan(
		&m.TenantID, &m.UserID, &m.Role, &raw,
		&m.InvitedBy, &m.InvitedAt, &m.JoinedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	return &m, nil
}

// Create creates a new membership
func (r *MembershipRepository) Create(ctx context.Context, m *tenant.Membership) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	permissions, err := json.Marshal(m.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		m.TenantID, m.UserID, m.Role, permissions,
		m.InvitedBy, m.InvitedAt, m.JoinedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// Get retrieves a membership by its composite key
func (r *MembershipRepository) Get(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	return getWithRetry(ctx, r.db, scanMembership,
		`SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
}

// Update updates a membership's role, permissions, and join state
func (r *MembershipRepository) Update(ctx context.Context, m *tenant.Membership) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	permissions, err := json.Marshal(m.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE memberships
		SET role = $3, permissions = $4, joined_at = $5, updated_at = $6
		WHERE tenant_id = $1 AND user_id = $2
	`,
		m.TenantID, m.UserID, m.Role, permissions, m.JoinedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

// Delete removes a membership
func (r *MembershipRepository) Delete(ctx context.Context, tenantID, userID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM memberships WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

// ListByTenant lists all memberships of a tenant
func (r *MembershipRepository) ListByTenant(ctx context.Context, tenantID string) ([]*tenant.Membership, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 ORDER BY invited_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	return collectMemberships(rows)
}

// ListByUser lists all memberships of a user across tenants
func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]*tenant.Membership, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY invited_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	return collectMemberships(rows)
}

func collectMemberships(rows pgx.Rows) ([]*tenant.Membership, error) {
	var out []*tenant.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memberships: %w", err)
	}
	return out, nil
}
