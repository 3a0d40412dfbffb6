package authz

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Domain errors
var (
	ErrGrantNotFound = errors.New("grant not found")
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidGrant  = errors.New("grant must name at least one action")
	ErrAccessDenied  = errors.New("access denied")
)

// Actions a grant or role can confer
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionAdmin  = "admin"
	ActionShare  = "share"
	ActionInvite = "invite"
	ActionManage = "manage"
)

// Wildcard matches any resource type or id in a grant
const Wildcard = "*"

// ValidAction reports whether action is a known action name
func ValidAction(action string) bool {
	switch action {
	case ActionRead, ActionWrite, ActionDelete, ActionAdmin, ActionShare, ActionInvite, ActionManage:
		return true
	}
	return false
}

// ActionSet is the result of a permission resolution. An empty set
// means no access; callers must treat it as deny.
type ActionSet map[string]struct{}

// NewActionSet builds a set from action names
func NewActionSet(actions ...string) ActionSet {
	s := make(ActionSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

// Has reports whether the set contains action
func (s ActionSet) Has(action string) bool {
	_, ok := s[action]
	return ok
}

// Union adds every action of other to the set
func (s ActionSet) Union(other ActionSet) {
	for a := range other {
		s[a] = struct{}{}
	}
}

// Add inserts the given actions
func (s ActionSet) Add(actions ...string) {
	for _, a := range actions {
		s[a] = struct{}{}
	}
}

// List returns the actions in sorted order
func (s ActionSet) List() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Grant is an explicit ABAC-style permission layered on top of role
// defaults. ResourceType and ResourceID may be the wildcard "*".
// Conditions hold attribute predicates evaluated by the
// resource owner; the resolver stores and surfaces them but only
// enforces expiry itself.
type Grant struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	TenantID         string            `json:"tenant_id"`
	ResourceType     string            `json:"resource_type"`
	ResourceID       string            `json:"resource_id"`
	Actions          []string          `json:"actions"`
	Conditions       map[string]string `json:"conditions,omitempty"`
	BlockInheritance bool              `json:"block_inheritance"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	GrantedBy        string            `json:"granted_by"`
	CreatedAt        time.Time         `json:"created_at"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
}

// IsActive reports whether the grant is neither revoked nor expired
func (g *Grant) IsActive(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return false
	}
	return true
}

// Matches reports whether the grant applies to the given resource
func (g *Grant) Matches(resourceType, resourceID string) bool {
	if g.ResourceType != Wildcard && g.ResourceType != resourceType {
		return false
	}
	if g.ResourceID != Wildcard && g.ResourceID != resourceID {
		return false
	}
	return true
}

// ConfersAdmin reports whether the grant carries admin-equivalent
// authority, the only kind that flows down the tenant tree
func (g *Grant) ConfersAdmin() bool {
	for _, a := range g.Actions {
		if a == ActionAdmin {
			return true
		}
	}
	return false
}

// GrantRepository defines the interface for permission grant storage
type GrantRepository interface {
	// Create persists a new grant
	Create(ctx context.Context, grant *Grant) error

	// GetByID retrieves a grant
	GetByID(ctx context.Context, id string) (*Grant, error)

	// Revoke marks a grant revoked
	Revoke(ctx context.Context, id string) error

	// ListForUser retrieves a user's unrevoked grants scoped to any of
	// the given tenants.
	ListForUser(ctx context.Context, userID string, tenantIDs []string) ([]*Grant, error)

	// ListByTenant retrieves all unrevoked grants in a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*Grant, error)
}
