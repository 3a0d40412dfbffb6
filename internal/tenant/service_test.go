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
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-platform/heimdall/internal/audit"
)

// memRepo is an in-memory Repository. Reparent applies the same pure
// tree arithmetic the postgres implementation re-validates in its
// transaction, so service tests exercise real cascade semantics.
type memRepo struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
}

func newMemRepo() *memRepo {
	return &memRepo{tenants: make(map[string]*Tenant)}
}

func (r *memRepo) Create(_ context.Context, t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Slug == t.Slug && equalParent(existing.ParentID, t.ParentID) {
			return ErrDuplicateSlug
		}
	}
	cp := cloneTenant(t)
	r.tenants[t.ID] = cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return cloneTenant(t), nil
}

func (r *memRepo) GetBySlug(_ context.Context, parentID *string, slug string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug && equalParent(t.ParentID, parentID) {
			return cloneTenant(t), nil
		}
	}
	return nil, ErrTenantNotFound
}

func (r *memRepo) Update(_ context.Context, t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return ErrTenantNotFound
	}
	r.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (r *memRepo) ListByParent(_ context.Context, parentID *string) ([]*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Tenant
	for _, t := range r.tenants {
		if equalParent(t.ParentID, parentID) {
			out = append(out, cloneTenant(t))
		}
	}
	return out, nil
}

func (r *memRepo) ListByIDs(_ context.Context, ids []string) ([]*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Tenant
	for _, id := range ids {
		if t, ok := r.tenants[id]; ok {
			out = append(out, cloneTenant(t))
		}
	}
	return out, nil
}

func (r *memRepo) ListDescendants(_ context.Context, id string) ([]*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Tenant
	for _, t := range r.tenants {
		if t.ID != id && slices.Contains(t.Path, id) {
			out = append(out, cloneTenant(t))
		}
	}
	return out, nil
}

func (r *memRepo) Reparent(_ context.Context, tenantID string, newParentID *string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}

	var newParent *Tenant
	if newParentID != nil {
		newParent, ok = r.tenants[*newParentID]
		if !ok {
			return nil, ErrParentNotFound
		}
	}

	maxLevel := t.Level
	for _, d := range r.tenants {
		if d.ID != t.ID && slices.Contains(d.Path, t.ID) && d.Level > maxLevel {
			maxLevel = d.Level
		}
	}
	if err := ValidateReparent(t, newParent, maxLevel); err != nil {
		return nil, err
	}

	oldPath := slices.Clone(t.Path)
	if newParent == nil {
		t.ParentID = nil
		t.Path = []string{t.ID}
	} else {
		pid := newParent.ID
		t.ParentID = &pid
		t.Path = ChildPath(newParent, t.ID)
		t.MaxDepth = newParent.MaxDepth
	}
	t.Level = len(t.Path) - 1
	if err := CheckInvariants(t); err != nil {
		return nil, err
	}

	for _, d := range r.tenants {
		if d.ID != t.ID && slices.Contains(d.Path, t.ID) {
			d.Path = RebasePath(d.Path, oldPath, t.Path)
			d.Level = len(d.Path) - 1
			d.MaxDepth = t.MaxDepth
		}
	}
	return cloneTenant(t), nil
}

type memMemberRepo struct {
	mu      sync.Mutex
	members map[string]*Membership
}

func newMemMemberRepo() *memMemberRepo {
	return &memMemberRepo{members: make(map[string]*Membership)}
}

func memberKey(tenantID, userID string) string { return tenantID + "|" + userID }

func (r *memMemberRepo) Create(_ context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(m.TenantID, m.UserID)
	if _, ok := r.members[key]; ok {
		return ErrMembershipExists
	}
	cp := *m
	r.members[key] = &cp
	return nil
}

func (r *memMemberRepo) Get(_ context.Context, tenantID, userID string) (*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberKey(tenantID, userID)]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMemberRepo) Update(_ context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(m.TenantID, m.UserID)
	if _, ok := r.members[key]; !ok {
		return ErrMembershipNotFound
	}
	cp := *m
	r.members[key] = &cp
	return nil
}

func (r *memMemberRepo) Delete(_ context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(tenantID, userID)
	if _, ok := r.members[key]; !ok {
		return ErrMembershipNotFound
	}
	delete(r.members, key)
	return nil
}

func (r *memMemberRepo) ListByTenant(_ context.Context, tenantID string) ([]*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Membership
	for _, m := range r.members {
		if m.TenantID == tenantID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMemberRepo) ListByUser(_ context.Context, userID string) ([]*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Membership
	for _, m := range r.members {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func cloneTenant(t *Tenant) *Tenant {
	cp := *t
	cp.Path = slices.Clone(t.Path)
	return &cp
}

func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func newTestService() *Service {
	return NewService(newMemRepo(), newMemMemberRepo(), nil, audit.NewSlogLogger())
}

func createRoot(t *testing.T, svc *Service, slug string) *Tenant {
	t.Helper()
	root, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		Kind: KindWorkspace, Name: slug, Slug: slug, ActorID: "admin",
	})
	require.NoError(t, err)
	return root
}

func createChild(t *testing.T, svc *Service, parent *Tenant, slug string) *Tenant {
	t.Helper()
	child, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		ParentID: &parent.ID, Kind: KindTeam, Name: slug, Slug: slug, ActorID: "admin",
	})
	require.NoError(t, err)
	return child
}

// TestPurpose: Validates root tenant creation derives level, path, and
// the default depth ceiling.
// Scope: Unit Test
// Expected: Level 0, single-element path, DefaultMaxDepth.
// Test Case ID: TNT-01
func TestCreateTenant_Root(t *testing.T) {
	svc := newTestService()

	root := createRoot(t, svc, "acme")

	assert.Equal(t, 0, root.Level)
	assert.Equal(t, []string{root.ID}, root.Path)
	assert.Equal(t, DefaultMaxDepth, root.MaxDepth)
	assert.True(t, root.IsRoot())
	assert.NoError(t, CheckInvariants(root))
}

// TestPurpose: Validates child creation extends the parent path and
// inherits the tree's depth ceiling.
// Scope: Unit Test
// Expected: Level parent+1, path parent path plus own id.
// Test Case ID: TNT-02
func TestCreateTenant_Child(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")

	child := createChild(t, svc, root, "engineering")

	assert.Equal(t, 1, child.Level)
	assert.Equal(t, []string{root.ID, child.ID}, child.Path)
	assert.Equal(t, root.MaxDepth, child.MaxDepth)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
}

// TestPurpose: Validates that creation below the tree's depth ceiling
// boundary fails.
// Scope: Unit Test
// Expected: ErrMaxDepthExceeded once level would exceed max_depth.
// Test Case ID: TNT-03
func TestCreateTenant_DepthCeiling(t *testing.T) {
	svc := newTestService()

	root, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		Kind: KindWorkspace, Name: "acme", Slug: "acme", MaxDepth: 2, ActorID: "admin",
	})
	require.NoError(t, err)

	l1 := createChild(t, svc, root, "div")
	l2 := createChild(t, svc, l1, "dept")
	assert.Equal(t, 2, l2.Level)

	_, err = svc.CreateTenant(context.Background(), CreateTenantInput{
		ParentID: &l2.ID, Kind: KindTeam, Name: "team", Slug: "team", ActorID: "admin",
	})
	assert.ErrorIs(t, err, ErrMaxDepthExceeded,
		"TNT-03: creating below the ceiling must fail")
}

// TestPurpose: Validates sibling slug uniqueness, while the same slug
// under a different parent is allowed.
// Scope: Unit Test
// Expected: ErrDuplicateSlug for siblings only.
// Test Case ID: TNT-04
func TestCreateTenant_SiblingSlugUnique(t *testing.T) {
	svc := newTestService()
	rootA := createRoot(t, svc, "acme")
	rootB := createRoot(t, svc, "globex")

	createChild(t, svc, rootA, "engineering")

	_, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		ParentID: &rootA.ID, Kind: KindTeam, Name: "dup", Slug: "Engineering", ActorID: "admin",
	})
	assert.ErrorIs(t, err, ErrDuplicateSlug,
		"TNT-04: slug comparison is case-insensitive among siblings")

	// Same slug under another parent is fine
	createChild(t, svc, rootB, "engineering")
}

// TestPurpose: Validates that creating under an archived parent is
// refused.
// Scope: Unit Test
// Expected: ErrTenantArchived.
// Test Case ID: TNT-05
func TestCreateTenant_ArchivedParent(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")
	require.NoError(t, svc.Archive(context.Background(), root.ID, "admin"))

	_, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		ParentID: &root.ID, Kind: KindTeam, Name: "x", Slug: "x", ActorID: "admin",
	})
	assert.ErrorIs(t, err, ErrTenantArchived)
}

// TestPurpose: Validates that reparenting moves the whole subtree,
// rewriting every descendant's path and level.
// Scope: Unit Test
// Expected: Descendant paths share the new prefix; levels shift.
// Test Case ID: TNT-06
func TestReparent_CascadesSubtree(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")
	divA := createChild(t, svc, root, "div-a")
	divB := createChild(t, svc, root, "div-b")
	team := createChild(t, svc, divA, "team")

	moved, err := svc.Reparent(context.Background(), divA.ID, &divB.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID, divB.ID, divA.ID}, moved.Path)
	assert.Equal(t, 2, moved.Level)

	got, err := svc.GetTenant(context.Background(), team.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID, divB.ID, divA.ID, team.ID}, got.Path,
		"TNT-06: descendant path must be rebased onto the new prefix")
	assert.Equal(t, 3, got.Level)
	assert.NoError(t, CheckInvariants(got))
}

// TestPurpose: Validates that a tenant cannot be moved under itself or
// one of its own descendants.
// Scope: Unit Test
// Security: Cycle-freedom of the tenant tree
// Expected: ErrCircularReference, tree unchanged.
// Test Case ID: TNT-07
func TestReparent_CycleRejected(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")
	div := createChild(t, svc, root, "div")
	team := createChild(t, svc, div, "team")

	_, err := svc.Reparent(context.Background(), div.ID, &team.ID, "admin")
	assert.ErrorIs(t, err, ErrCircularReference)

	_, err = svc.Reparent(context.Background(), div.ID, &div.ID, "admin")
	assert.ErrorIs(t, err, ErrCircularReference)

	// Tree is untouched
	got, err := svc.GetTenant(context.Background(), team.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID, div.ID, team.ID}, got.Path)
}

// TestPurpose: Validates that reparenting accounts for the height of
// the moved subtree against the destination's depth ceiling.
// Scope: Unit Test
// Expected: ErrMaxDepthExceeded when the deepest descendant would
// exceed max_depth.
// Test Case ID: TNT-08
func TestReparent_DepthCeilingCountsSubtree(t *testing.T) {
	svc := newTestService()
	root, err := svc.CreateTenant(context.Background(), CreateTenantInput{
		Kind: KindWorkspace, Name: "acme", Slug: "acme", MaxDepth: 3, ActorID: "admin",
	})
	require.NoError(t, err)

	divA := createChild(t, svc, root, "div-a")
	teamA := createChild(t, svc, divA, "team-a")
	createChild(t, svc, teamA, "squad") // level 3, at the ceiling

	divB := createChild(t, svc, root, "div-b")

	// Moving div-a under div-b would push squad to level 4 > 3
	_, err = svc.Reparent(context.Background(), divA.ID, &divB.ID, "admin")
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

// TestPurpose: Validates ancestor retrieval preserves root-first order.
// Scope: Unit Test
// Expected: Ancestors ordered root, division; self excluded.
// Test Case ID: TNT-09
func TestGetAncestors_RootFirst(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")
	div := createChild(t, svc, root, "div")
	team := createChild(t, svc, div, "team")

	ancestors, err := svc.GetAncestors(context.Background(), team.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, root.ID, ancestors[0].ID)
	assert.Equal(t, div.ID, ancestors[1].ID)
}

// TestPurpose: Validates the invite lifecycle: pending on creation,
// joined after accept, second accept refused.
// Scope: Unit Test
// Expected: IsPending true then false; ErrInviteAccepted on repeat.
// Test Case ID: TNT-10
func TestMembership_InviteLifecycle(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")

	m, err := svc.AddMembership(context.Background(), AddMembershipInput{
		TenantID: root.ID, UserID: "user-1", Role: RoleMember, InvitedBy: "admin",
	})
	require.NoError(t, err)
	assert.True(t, m.IsPending())

	joined, err := svc.AcceptInvite(context.Background(), root.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, joined.IsPending())
	require.NotNil(t, joined.JoinedAt)
	assert.False(t, joined.JoinedAt.Before(joined.InvitedAt),
		"TNT-10: joined_at must not precede invited_at")

	_, err = svc.AcceptInvite(context.Background(), root.ID, "user-1")
	assert.ErrorIs(t, err, ErrInviteAccepted)
}

// TestPurpose: Validates that users cannot invite themselves.
// Scope: Unit Test
// Security: Self-elevation prevention
// Expected: ErrSelfInvite.
// Test Case ID: TNT-11
func TestMembership_SelfInviteRejected(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")

	_, err := svc.AddMembership(context.Background(), AddMembershipInput{
		TenantID: root.ID, UserID: "admin", Role: RoleOwner, InvitedBy: "admin",
	})
	assert.ErrorIs(t, err, ErrSelfInvite)
}

// TestPurpose: Validates role updates and membership removal.
// Scope: Unit Test
// Expected: Role changes persist; removed member is gone.
// Test Case ID: TNT-12
func TestMembership_UpdateAndRemove(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")

	_, err := svc.AddMembership(context.Background(), AddMembershipInput{
		TenantID: root.ID, UserID: "user-1", Role: RoleMember, InvitedBy: "admin",
	})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRole(context.Background(), root.ID, "user-1", RoleAdmin, "admin"))
	m, err := svc.GetMembership(context.Background(), root.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, m.Role)

	require.NoError(t, svc.RemoveMembership(context.Background(), root.ID, "user-1", "admin"))
	_, err = svc.GetMembership(context.Background(), root.ID, "user-1")
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}

// TestPurpose: Validates that an unknown role is rejected on invite.
// Scope: Unit Test
// Expected: ErrInvalidRole.
// Test Case ID: TNT-13
func TestMembership_InvalidRole(t *testing.T) {
	svc := newTestService()
	root := createRoot(t, svc, "acme")

	_, err := svc.AddMembership(context.Background(), AddMembershipInput{
		TenantID: root.ID, UserID: "user-1", Role: "superuser", InvitedBy: "admin",
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}
