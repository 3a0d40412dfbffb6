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
	"slices"
	"time"
)

// Tenant kinds
const (
	KindWorkspace  = "workspace"
	KindDivision   = "division"
	KindDepartment = "department"
	KindProject    = "project"
	KindTeam       = "team"
)

// Status constants
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusArchived  = "archived"
)

// MaxDepth bounds. MaxDepth is the deepest level allowed in a tree
// (root tenants sit at level 0) and is fixed per tree at root creation.
const (
	MinMaxDepth     = 2
	MaxMaxDepth     = 5
	DefaultMaxDepth = 5
)

// Tenant is a node in the hierarchical organizational tree.
//
// Path is the materialized ancestor chain from root to this tenant,
// inclusive. It is derived data, recomputed on every create and reparent,
// and the invariants Level == len(Path)-1 and Path[len(Path)-1] == ID hold
// for every persisted tenant.
type Tenant struct {
	ID         string     `json:"id"`
	ParentID   *string    `json:"parent_id,omitempty"`
	Level      int        `json:"level"`
	Path       []string   `json:"path"`
	MaxDepth   int        `json:"max_depth"`
	Kind       string     `json:"kind"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// IsRoot reports whether the tenant is a tree root
func (t *Tenant) IsRoot() bool {
	return t.ParentID == nil
}

// IsActive reports whether the tenant participates in membership and
// permission queries
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// HasAncestor reports whether id appears in the tenant's ancestor chain
// (excluding the tenant itself)
func (t *Tenant) HasAncestor(id string) bool {
	for _, p := range t.Path[:max(len(t.Path)-1, 0)] {
		if p == id {
			return true
		}
	}
	return false
}

// AncestorIDs returns the ancestor chain from root to parent, excluding
// the tenant itself
func (t *Tenant) AncestorIDs() []string {
	if len(t.Path) <= 1 {
		return nil
	}
	return slices.Clone(t.Path[:len(t.Path)-1])
}

// ValidKind reports whether kind is a known tenant kind
func ValidKind(kind string) bool {
	switch kind {
	case KindWorkspace, KindDivision, KindDepartment, KindProject, KindTeam:
		return true
	}
	return false
}
