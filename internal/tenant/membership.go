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

import "time"

// Membership roles
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
	RoleGuest  = "guest"
	RoleCustom = "custom"
)

// Membership represents a user's role assignment in a tenant. The
// composite key is (TenantID, UserID). A nil JoinedAt marks a pending
// invite; when set, JoinedAt >= InvitedAt.
type Membership struct {
	TenantID    string     `json:"tenant_id"`
	UserID      string     `json:"user_id"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions,omitempty"`
	InvitedBy   string     `json:"invited_by"`
	InvitedAt   time.Time  `json:"invited_at"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsPending reports whether the invite has not been accepted yet
func (m *Membership) IsPending() bool {
	return m.JoinedAt == nil
}

// ValidRole reports whether role is a known membership role
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer, RoleGuest, RoleCustom:
		return true
	}
	return false
}
