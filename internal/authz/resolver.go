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

package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/id"
	"github.com/heimdall-platform/heimdall/internal/tenant"
)

// Resolver computes effective permissions for a (user, tenant, resource)
// triple by combining role templates, explicit grants, and inherited
// admin authority from ancestor tenants.
type Resolver struct {
	tenants     tenant.Repository
	members     tenant.MembershipRepository
	grants      GrantRepository
	cache       DecisionCache
	auditLogger audit.Logger
}

// NewResolver creates a new permission resolver
func NewResolver(
	tenants tenant.Repository,
	members tenant.MembershipRepository,
	grants GrantRepository,
	cache DecisionCache,
	auditLogger audit.Logger,
) *Resolver {
	if cache == nil {
		cache = NopCache{}
	}
	return &Resolver{
		tenants:     tenants,
		members:     members,
		grants:      grants,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// Resolve computes the effective action set. An empty set means no
// access; callers must never interpret a missing grant as allow.
//
// Inheritance flows downward only: ancestors contribute admin-equivalent
// authority, never siblings or descendants. A matching grant at the
// target tenant with BlockInheritance set suppresses the ancestor walk
// for this tenant alone; resolutions at other tenants are unaffected.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID, resourceType, resourceID string) (ActionSet, error) {
	if cached, ok := r.cache.Get(ctx, userID, tenantID, resourceType, resourceID); ok {
		return cached, nil
	}

	t, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	// Archived and suspended tenants are excluded from permission
	// queries; everything resolves to deny.
	if !t.IsActive() {
		return NewActionSet(), nil
	}

	now := time.Now()
	result := NewActionSet()

	// (a) Role-derived defaults from the membership at this tenant.
	// Pending invites confer nothing.
	m, err := r.members.Get(ctx, tenantID, userID)
	switch {
	case err == nil:
		if !m.IsPending() {
			result.Union(RoleActions(m.Role))
			result.Add(m.Permissions...)
		}
	case errors.Is(err, tenant.ErrMembershipNotFound):
		m = nil
	default:
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	// (b) Explicit grants scoped to this exact tenant.
	blocked := false
	direct, err := r.grants.ListForUser(ctx, userID, []string{tenantID})
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	for _, g := range direct {
		if !g.IsActive(now) || !g.Matches(resourceType, resourceID) {
			continue
		}
		result.Add(g.Actions...)
		if g.BlockInheritance {
			blocked = true
		}
	}

	// (c) Ancestor walk, unless a qualifying grant blocks inheritance.
	// Only admin/owner-equivalent authority flows down.
	if !blocked && len(t.AncestorIDs()) > 0 {
		inherited, err := r.resolveInherited(ctx, userID, t, resourceType, resourceID, now)
		if err != nil {
			return nil, err
		}
		result.Union(inherited)
	}

	r.cache.Set(ctx, userID, tenantID, resourceType, resourceID, result)
	return result, nil
}

func (r *Resolver) resolveInherited(ctx context.Context, userID string, t *tenant.Tenant, resourceType, resourceID string, now time.Time) (ActionSet, error) {
	inherited := NewActionSet()
	ancestorIDs := t.AncestorIDs()

	ancestors, err := r.tenants.ListByIDs(ctx, ancestorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load ancestors: %w", err)
	}
	active := make(map[string]bool, len(ancestors))
	for _, a := range ancestors {
		active[a.ID] = a.IsActive()
	}

	for _, ancestorID := range ancestorIDs {
		if !active[ancestorID] {
			continue
		}
		am, err := r.members.Get(ctx, ancestorID, userID)
		if err != nil {
			if errors.Is(err, tenant.ErrMembershipNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load ancestor membership: %w", err)
		}
		if !am.IsPending() && AdminEquivalent(am.Role) {
			inherited.Union(RoleActions(am.Role))
		}
	}

	ancestorGrants, err := r.grants.ListForUser(ctx, userID, ancestorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load ancestor grants: %w", err)
	}
	for _, g := range ancestorGrants {
		if !active[g.TenantID] {
			continue
		}
		if g.IsActive(now) && g.Matches(resourceType, resourceID) && g.ConfersAdmin() {
			inherited.Add(g.Actions...)
		}
	}

	return inherited, nil
}

// Check reports whether the user may perform action on the resource.
// Deny-by-default: any resolution failure other than storage trouble
// yields false.
func (r *Resolver) Check(ctx context.Context, userID, tenantID, resourceType, resourceID, action string) (bool, error) {
	if !ValidAction(action) {
		return false, ErrInvalidAction
	}
	actions, err := r.Resolve(ctx, userID, tenantID, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return false, nil
		}
		return false, err
	}
	allowed := actions.Has(action)
	if !allowed {
		slog.DebugContext(ctx, "permission denied",
			slog.String("user_id", userID),
			slog.String("tenant_id", tenantID),
			slog.String("resource_type", resourceType),
			slog.String("action", action),
		)
	}
	return allowed, nil
}

// GrantPermissionInput holds the parameters for GrantPermission
type GrantPermissionInput struct {
	UserID           string
	TenantID         string
	ResourceType     string
	ResourceID       string
	Actions          []string
	Conditions       map[string]string
	BlockInheritance bool
	ExpiresAt        *time.Time
	GrantedBy        string
}

// GrantPermission records an explicit permission grant
func (r *Resolver) GrantPermission(ctx context.Context, in GrantPermissionInput) (*Grant, error) {
	if len(in.Actions) == 0 {
		return nil, ErrInvalidGrant
	}
	for _, a := range in.Actions {
		if !ValidAction(a) {
			return nil, ErrInvalidAction
		}
	}
	if in.ResourceType == "" {
		in.ResourceType = Wildcard
	}
	if in.ResourceID == "" {
		in.ResourceID = Wildcard
	}

	t, err := r.tenants.GetByID(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, tenant.ErrTenantArchived
	}

	g := &Grant{
		ID:               id.NewUUIDv7(),
		UserID:           in.UserID,
		TenantID:         in.TenantID,
		ResourceType:     in.ResourceType,
		ResourceID:       in.ResourceID,
		Actions:          in.Actions,
		Conditions:       in.Conditions,
		BlockInheritance: in.BlockInheritance,
		ExpiresAt:        in.ExpiresAt,
		GrantedBy:        in.GrantedBy,
		CreatedAt:        time.Now(),
	}
	if err := r.grants.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	// A new grant can only widen access, but BlockInheritance narrows
	// it; drop cached decisions either way to keep reads coherent.
	r.cache.InvalidateUser(ctx, in.UserID)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGrantCreated,
		TenantID: in.TenantID,
		ActorID:  in.GrantedBy,
		Resource: in.ResourceType,
		Metadata: map[string]any{
			"user_id": in.UserID,
			"actions": in.Actions,
		},
	})

	return g, nil
}

// RevokeGrant revokes an explicit grant and synchronously drops cached
// decisions for the affected user
func (r *Resolver) RevokeGrant(ctx context.Context, grantID, actorID string) error {
	g, err := r.grants.GetByID(ctx, grantID)
	if err != nil {
		return err
	}
	if err := r.grants.Revoke(ctx, grantID); err != nil {
		return err
	}

	r.cache.InvalidateUser(ctx, g.UserID)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGrantRevoked,
		TenantID: g.TenantID,
		ActorID:  actorID,
		Resource: g.ResourceType,
		Metadata: map[string]any{"user_id": g.UserID, "grant_id": grantID},
	})

	return nil
}

// ListGrants returns a user's unrevoked grants at a tenant
func (r *Resolver) ListGrants(ctx context.Context, userID, tenantID string) ([]*Grant, error) {
	return r.grants.ListForUser(ctx, userID, []string{tenantID})
}

// ListTenantGrants returns every unrevoked grant in a tenant
func (r *Resolver) ListTenantGrants(ctx context.Context, tenantID string) ([]*Grant, error) {
	return r.grants.ListByTenant(ctx, tenantID)
}
