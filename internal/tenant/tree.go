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

import "slices"

// Pure tree arithmetic shared by the service, the postgres repository
// (which re-validates inside its transaction), and tests. Nothing here
// touches storage.

// ChildPath computes the materialized path for a child of parent.
func ChildPath(parent *Tenant, childID string) []string {
	path := make([]string, 0, len(parent.Path)+1)
	path = append(path, parent.Path...)
	return append(path, childID)
}

// ValidateReparent checks the structural invariants of moving t under
// newParent. maxDescendantLevel is the deepest level currently found in
// t's subtree (t.Level when it has no descendants). A nil newParent
// moves t to the root of its own tree.
//
// The CircularReference check is the core cycle-freedom invariant: a new
// parent whose own path already contains t's id is a descendant of t,
// and adopting it as parent would close a loop.
func ValidateReparent(t, newParent *Tenant, maxDescendantLevel int) error {
	if maxDescendantLevel < t.Level {
		maxDescendantLevel = t.Level
	}
	subtreeHeight := maxDescendantLevel - t.Level

	if newParent == nil {
		return nil
	}

	if newParent.ID == t.ID {
		return ErrCircularReference
	}
	if slices.Contains(newParent.Path, t.ID) {
		return ErrCircularReference
	}

	newLevel := newParent.Level + 1
	if newLevel+subtreeHeight > newParent.MaxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// RebasePath replaces oldPrefix at the head of path with newPrefix.
// Used to cascade a reparent across a subtree: every descendant shares
// the moved tenant's old path as a prefix.
func RebasePath(path, oldPrefix, newPrefix []string) []string {
	rebased := make([]string, 0, len(newPrefix)+len(path)-len(oldPrefix))
	rebased = append(rebased, newPrefix...)
	return append(rebased, path[len(oldPrefix):]...)
}

// CheckInvariants verifies the derived-data invariants of a tenant
// record. Storage implementations call it after recomputing paths.
func CheckInvariants(t *Tenant) error {
	if len(t.Path) == 0 || t.Path[len(t.Path)-1] != t.ID {
		return ErrCorruptPath
	}
	if t.Level != len(t.Path)-1 {
		return ErrCorruptPath
	}
	if t.Level > t.MaxDepth {
		return ErrMaxDepthExceeded
	}
	seen := make(map[string]struct{}, len(t.Path))
	for _, id := range t.Path {
		if _, dup := seen[id]; dup {
			return ErrCircularReference
		}
		seen[id] = struct{}{}
	}
	if t.IsRoot() != (t.Level == 0) {
		return ErrCorruptPath
	}
	return nil
}
