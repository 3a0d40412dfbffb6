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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/id"
)

// CacheInvalidator is notified when an operation reduces someone's
// access, so that denormalized permission decisions are dropped
// synchronously rather than aging out. The permission resolver's
// decision cache implements it.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
	InvalidateTenant(ctx context.Context, tenantID string)
}

// NopInvalidator is used when no decision cache is configured
type NopInvalidator struct{}

func (NopInvalidator) InvalidateUser(context.Context, string)   {}
func (NopInvalidator) InvalidateTenant(context.Context, string) {}

// Service provides tenant tree and membership business logic
type Service struct {
	repo        Repository
	memberRepo  MembershipRepository
	invalidator CacheInvalidator
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, memberRepo MembershipRepository, invalidator CacheInvalidator, auditLogger audit.Logger) *Service {
	if invalidator == nil {
		invalidator = NopInvalidator{}
	}
	return &Service{
		repo:        repo,
		memberRepo:  memberRepo,
		invalidator: invalidator,
		auditLogger: auditLogger,
	}
}

// CreateTenantInput holds the parameters for CreateTenant
type CreateTenantInput struct {
	ParentID *string
	Kind     string
	Name     string
	Slug     string
	// MaxDepth sets the tree ceiling for root tenants; children always
	// inherit the ceiling of their tree.
	MaxDepth int
	ActorID  string
}

// CreateTenant creates a tenant under the given parent, or a new tree
// root when ParentID is nil.
func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (*Tenant, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if !ValidKind(in.Kind) {
		return nil, ErrInvalidKind
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" {
		return nil, ErrInvalidSlug
	}

	newID := id.NewUUIDv7()
	now := time.Now()
	t := &Tenant{
		ID:        newID,
		ParentID:  in.ParentID,
		Kind:      in.Kind,
		Name:      in.Name,
		Slug:      slug,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if in.ParentID == nil {
		maxDepth := in.MaxDepth
		if maxDepth == 0 {
			maxDepth = DefaultMaxDepth
		}
		if maxDepth < MinMaxDepth || maxDepth > MaxMaxDepth {
			return nil, ErrInvalidMaxDepth
		}
		t.Level = 0
		t.Path = []string{newID}
		t.MaxDepth = maxDepth
	} else {
		parent, err := s.repo.GetByID(ctx, *in.ParentID)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, fmt.Errorf("failed to load parent: %w", err)
		}
		if parent.Status == StatusArchived {
			return nil, ErrTenantArchived
		}
		t.Level = parent.Level + 1
		t.Path = ChildPath(parent, newID)
		t.MaxDepth = parent.MaxDepth
		if t.Level > t.MaxDepth {
			return nil, ErrMaxDepthExceeded
		}
	}

	// Slug uniqueness is scoped to siblings. The repository enforces it
	// again with a unique index; this check gives the caller a clean
	// error on the common path.
	if _, err := s.repo.GetBySlug(ctx, in.ParentID, slug); err == nil {
		return nil, ErrDuplicateSlug
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		ActorID:  in.ActorID,
		Resource: t.Slug,
		Metadata: map[string]any{"kind": t.Kind, "level": t.Level},
	})

	return t, nil
}

// Reparent moves a tenant (and its whole subtree) under a new parent.
// The repository performs the cascade atomically; a failure leaves every
// path untouched.
func (s *Service) Reparent(ctx context.Context, tenantID string, newParentID *string, actorID string) (*Tenant, error) {
	if newParentID != nil && *newParentID == tenantID {
		return nil, ErrCircularReference
	}

	moved, err := s.repo.Reparent(ctx, tenantID, newParentID)
	if err != nil {
		return nil, err
	}

	s.invalidator.InvalidateTenant(ctx, tenantID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantReparented,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: moved.Slug,
		Metadata: map[string]any{"new_level": moved.Level},
	})

	return moved, nil
}

// Archive excludes a tenant from active membership and permission
// queries while retaining it for audit.
func (s *Service) Archive(ctx context.Context, tenantID, actorID string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Status == StatusArchived {
		return nil
	}

	now := time.Now()
	t.Status = StatusArchived
	t.ArchivedAt = &now
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to archive tenant: %w", err)
	}

	// Archiving removes access derived from this tenant.
	s.invalidator.InvalidateTenant(ctx, tenantID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantArchived,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: t.Slug,
	})

	return nil
}

// Suspend marks a tenant suspended without removing it from the tree
func (s *Service) Suspend(ctx context.Context, tenantID, actorID string) error {
	return s.setStatus(ctx, tenantID, actorID, StatusSuspended, audit.TypeTenantSuspended)
}

// Activate restores a suspended tenant
func (s *Service) Activate(ctx context.Context, tenantID, actorID string) error {
	return s.setStatus(ctx, tenantID, actorID, StatusActive, "")
}

func (s *Service) setStatus(ctx context.Context, tenantID, actorID, status, auditType string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Status == StatusArchived {
		return ErrTenantArchived
	}
	if t.Status == status {
		return nil
	}

	t.Status = status
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	if status == StatusSuspended {
		s.invalidator.InvalidateTenant(ctx, tenantID)
	}
	if auditType != "" {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     auditType,
			TenantID: tenantID,
			ActorID:  actorID,
			Resource: t.Slug,
		})
	}
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetByID(ctx, tenantID)
}

// GetAncestors returns the ancestor chain of a tenant ordered root
// first, excluding the tenant itself. It is a pure path lookup.
func (s *Service) GetAncestors(ctx context.Context, tenantID string) ([]*Tenant, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids := t.AncestorIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	tenants, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load ancestors: %w", err)
	}

	// Preserve root-first path order.
	byID := make(map[string]*Tenant, len(tenants))
	for _, a := range tenants {
		byID[a.ID] = a
	}
	ordered := make([]*Tenant, 0, len(ids))
	for _, ancestorID := range ids {
		if a, ok := byID[ancestorID]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// GetDescendants returns every tenant below the given one
func (s *Service) GetDescendants(ctx context.Context, tenantID string) ([]*Tenant, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListDescendants(ctx, tenantID)
}

// ListChildren returns the direct children of a tenant
func (s *Service) ListChildren(ctx context.Context, tenantID string) ([]*Tenant, error) {
	return s.repo.ListByParent(ctx, &tenantID)
}

// AddMembershipInput holds the parameters for AddMembership
type AddMembershipInput struct {
	TenantID    string
	UserID      string
	Role        string
	Permissions []string
	InvitedBy   string
}

// AddMembership records a pending invite for a user in a tenant
func (s *Service) AddMembership(ctx context.Context, in AddMembershipInput) (*Membership, error) {
	if !ValidRole(in.Role) {
		return nil, ErrInvalidRole
	}
	if in.UserID == in.InvitedBy {
		return nil, ErrSelfInvite
	}

	t, err := s.repo.GetByID(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrTenantArchived
	}

	now := time.Now()
	m := &Membership{
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		Role:        in.Role,
		Permissions: in.Permissions,
		InvitedBy:   in.InvitedBy,
		InvitedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMembershipAdded,
		TenantID: in.TenantID,
		ActorID:  in.InvitedBy,
		Resource: in.Role,
		Metadata: map[string]any{"user_id": in.UserID},
	})

	return m, nil
}

// AcceptInvite marks a pending membership as joined
func (s *Service) AcceptInvite(ctx context.Context, tenantID, userID string) (*Membership, error) {
	m, err := s.memberRepo.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsPending() {
		return nil, ErrInviteAccepted
	}

	now := time.Now()
	if now.Before(m.InvitedAt) {
		now = m.InvitedAt
	}
	m.JoinedAt = &now
	m.UpdatedAt = now
	if err := s.memberRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateRole changes a member's role. Downgrades invalidate cached
// permission decisions for the user synchronously.
func (s *Service) UpdateRole(ctx context.Context, tenantID, userID, role, actorID string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	m, err := s.memberRepo.Get(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if m.Role == role {
		return nil
	}

	m.Role = role
	m.UpdatedAt = time.Now()
	if err := s.memberRepo.Update(ctx, m); err != nil {
		return err
	}

	s.invalidator.InvalidateUser(ctx, userID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleChanged,
		TenantID: tenantID,
		ActorID:  actorID,
		Resource: role,
		Metadata: map[string]any{"user_id": userID},
	})

	return nil
}

// RemoveMembership deletes a user's membership in a tenant
func (s *Service) RemoveMembership(ctx context.Context, tenantID, userID, actorID string) error {
	if err := s.memberRepo.Delete(ctx, tenantID, userID); err != nil {
		return err
	}

	s.invalidator.InvalidateUser(ctx, userID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeMembershipRemoved,
		TenantID: tenantID,
		ActorID:  actorID,
		Metadata: map[string]any{"user_id": userID},
	})

	return nil
}

// GetMembership retrieves a single membership
func (s *Service) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	return s.memberRepo.Get(ctx, tenantID, userID)
}

// ListMembers lists all memberships in a tenant
func (s *Service) ListMembers(ctx context.Context, tenantID string) ([]*Membership, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.memberRepo.ListByTenant(ctx, tenantID)
}

// ListUserMemberships lists all of a user's memberships across tenants
func (s *Service) ListUserMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	return s.memberRepo.ListByUser(ctx, userID)
}
