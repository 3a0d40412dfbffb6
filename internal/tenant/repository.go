package tenant

import "context"

// Repository defines the interface for tenant tree storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	// GetBySlug looks a tenant up by slug among the children of parentID,
	// or among roots when parentID is nil.
	GetBySlug(ctx context.Context, parentID *string, slug string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	ListByParent(ctx context.Context, parentID *string) ([]*Tenant, error)
	// ListByIDs returns the tenants for the given ids, used to hydrate
	// ancestor chains from a materialized path.
	ListByIDs(ctx context.Context, ids []string) ([]*Tenant, error)
	// ListDescendants returns every tenant whose path contains id,
	// excluding the tenant itself.
	ListDescendants(ctx context.Context, id string) ([]*Tenant, error)

	// Reparent atomically moves tenantID under newParentID (nil for root),
	// recomputing path and level for the tenant and every descendant.
	// Implementations serialize on the moved subtree, re-validate the
	// cycle and depth invariants inside their transaction, and either
	// move the whole subtree or nothing.
	Reparent(ctx context.Context, tenantID string, newParentID *string) (*Tenant, error)
}

// MembershipRepository defines the interface for membership storage
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, tenantID, userID string) (*Membership, error)
	Update(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, tenantID, userID string) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
}
