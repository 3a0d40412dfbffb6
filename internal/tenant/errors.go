package tenant

import "errors"

// Domain errors
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrParentNotFound    = errors.New("parent tenant not found")
	ErrCircularReference = errors.New("reparent would create a cycle")
	ErrMaxDepthExceeded  = errors.New("tenant tree depth limit exceeded")
	ErrDuplicateSlug     = errors.New("slug already used by a sibling")
	ErrTenantArchived    = errors.New("tenant is archived")
	ErrCorruptPath       = errors.New("tenant path violates invariants")

	ErrMembershipNotFound = errors.New("membership not found")
	ErrMembershipExists   = errors.New("membership already exists")
	ErrSelfInvite         = errors.New("users cannot invite themselves")
	ErrInviteAccepted     = errors.New("invite already accepted")
	ErrInvalidRole        = errors.New("invalid membership role")
	ErrInvalidKind        = errors.New("invalid tenant kind")
	ErrInvalidMaxDepth    = errors.New("max depth must be between 2 and 5")
	ErrInvalidSlug        = errors.New("slug is required")
)
