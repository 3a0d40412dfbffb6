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
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heimdall-platform/heimdall/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, parent_id, level, path, max_depth, kind, name, slug, status, created_at, updated_at, archived_at`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.ParentID, &t.Level, &t.Path, &t.MaxDepth,
		&t.Kind, &t.Name, &t.Slug, &t.Status,
		&t.CreatedAt, &t.UpdatedAt, &t.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.ParentID, t.Level, t.Path, t.MaxDepth,
		t.Kind, t.Name, t.Slug, t.Status,
		t.CreatedAt, t.UpdatedAt, t.ArchivedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrDuplicateSlug
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return getWithRetry(ctx, r.db, scanTenant,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

// GetBySlug looks a tenant up by slug among the children of parentID,
// or among roots when parentID is nil
func (r *TenantRepository) GetBySlug(ctx context.Context, parentID *string, slug string) (*tenant.Tenant, error) {
	if parentID == nil {
		return getWithRetry(ctx, r.db, scanTenant,
			`SELECT `+tenantColumns+` FROM tenants WHERE parent_id IS NULL AND slug = $1`, slug)
	}
	return getWithRetry(ctx, r.db, scanTenant,
		`SELECT `+tenantColumns+` FROM tenants WHERE parent_id = $1 AND slug = $2`, *parentID, slug)
}

// Update updates tenant metadata and status
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants
		SET kind = $2, name = $3, slug = $4, status = $5, max_depth = $6,
		    updated_at = $7, archived_at = $8
		WHERE id = $1
	`,
		t.ID, t.Kind, t.Name, t.Slug, t.Status, t.MaxDepth, t.UpdatedAt, t.ArchivedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tenant.ErrDuplicateSlug
		}
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// ListByParent lists direct children, or roots when parentID is nil
func (r *TenantRepository) ListByParent(ctx context.Context, parentID *string) ([]*tenant.Tenant, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if parentID == nil {
		rows, err = r.db.pool.Query(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE parent_id IS NULL ORDER BY slug`)
	} else {
		rows, err = r.db.pool.Query(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE parent_id = $1 ORDER BY slug`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// ListByIDs returns the tenants for the given ids
func (r *TenantRepository) ListByIDs(ctx context.Context, ids []string) ([]*tenant.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// ListDescendants returns every tenant whose path contains id, deepest
// last, excluding the tenant itself
func (r *TenantRepository) ListDescendants(ctx context.Context, id string) ([]*tenant.Tenant, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE $1 = ANY(path) AND id <> $1
		ORDER BY level, slug
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

func collectTenants(rows pgx.Rows) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenants: %w", err)
	}
	return out, nil
}

// Reparent atomically moves tenantID under newParentID, cascading the
// path rewrite over the whole subtree. Concurrent moves touching the
// same trees serialize on advisory locks keyed by the tree roots and
// taken in sorted key order, so two opposing cross-tree moves cannot
// hold one lock each and wait on the other, and the cycle check inside
// the transaction sees a settled tree.
func (r *TenantRepository) Reparent(ctx context.Context, tenantID string, newParentID *string) (*tenant.Tenant, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var moved *tenant.Tenant
	err := r.db.withTx(ctx, func(tx pgx.Tx) error {
		// Resolve both tree roots with plain reads before taking any
		// lock, row locks included, so all locking happens in a single
		// deterministic order.
		keys, err := reparentLockKeys(ctx, tx, tenantID, newParentID)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
				return fmt.Errorf("failed to acquire tree lock: %w", err)
			}
		}

		t, err := scanTenant(tx.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, tenantID))
		if err != nil {
			return err
		}
		// A move that committed between the root read and the lock
		// would leave us holding the wrong tree lock.
		if !lockKeyHeld(keys, treeLockKey(t.Path[0])) {
			return fmt.Errorf("%w: tenant moved concurrently", ErrStorageUnavailable)
		}

		var newParent *tenant.Tenant
		if newParentID != nil {
			newParent, err = scanTenant(tx.QueryRow(ctx,
				`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, *newParentID))
			if err != nil {
				if errors.Is(err, tenant.ErrTenantNotFound) {
					return tenant.ErrParentNotFound
				}
				return err
			}
			if !lockKeyHeld(keys, treeLockKey(newParent.Path[0])) {
				return fmt.Errorf("%w: destination tree moved concurrently", ErrStorageUnavailable)
			}
		}

		var maxLevel int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(level), $2) FROM tenants WHERE $1 = ANY(path)`,
			t.ID, t.Level,
		).Scan(&maxLevel); err != nil {
			return fmt.Errorf("failed to measure subtree: %w", err)
		}

		if err := tenant.ValidateReparent(t, newParent, maxLevel); err != nil {
			return err
		}

		oldPath := t.Path
		var newPath []string
		if newParent == nil {
			newPath = []string{t.ID}
			t.ParentID = nil
		} else {
			newPath = tenant.ChildPath(newParent, t.ID)
			pid := newParent.ID
			t.ParentID = &pid
		}
		t.Path = newPath
		t.Level = len(newPath) - 1
		if newParent != nil {
			t.MaxDepth = newParent.MaxDepth
		}
		t.UpdatedAt = time.Now()

		if err := tenant.CheckInvariants(t); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE tenants
			SET parent_id = $2, path = $3, level = $4, max_depth = $5, updated_at = $6
			WHERE id = $1
		`, t.ID, t.ParentID, t.Path, t.Level, t.MaxDepth, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to move tenant: %w", err)
		}

		// Cascade: every descendant's path starts with the old prefix.
		_, err = tx.Exec(ctx, `
			UPDATE tenants
			SET path = $2 || path[$3:],
			    level = array_length($2 || path[$3:], 1) - 1,
			    max_depth = $4,
			    updated_at = $5
			WHERE $1 = ANY(path) AND id <> $1
		`, t.ID, t.Path, len(oldPath)+1, t.MaxDepth, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to move subtree: %w", err)
		}

		moved = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// treeLockKey maps a tree root id onto the advisory lock keyspace
func treeLockKey(rootID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rootID))
	return int64(h.Sum64())
}

// reparentLockKeys resolves the tree roots of the moved tenant and the
// destination parent and returns their advisory lock keys sorted
// ascending, deduplicated for same-tree moves.
func reparentLockKeys(ctx context.Context, tx pgx.Tx, tenantID string, newParentID *string) ([]int64, error) {
	var srcRoot string
	if err := tx.QueryRow(ctx,
		`SELECT path[1] FROM tenants WHERE id = $1`, tenantID).Scan(&srcRoot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tree root: %w", err)
	}
	keys := []int64{treeLockKey(srcRoot)}

	if newParentID != nil {
		var dstRoot string
		if err := tx.QueryRow(ctx,
			`SELECT path[1] FROM tenants WHERE id = $1`, *newParentID).Scan(&dstRoot); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, tenant.ErrParentNotFound
			}
			return nil, fmt.Errorf("failed to resolve tree root: %w", err)
		}
		switch dstKey := treeLockKey(dstRoot); {
		case dstKey < keys[0]:
			keys = []int64{dstKey, keys[0]}
		case dstKey > keys[0]:
			keys = append(keys, dstKey)
		}
	}
	return keys, nil
}

func lockKeyHeld(keys []int64, key int64) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
