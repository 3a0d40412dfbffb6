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

import "github.com/heimdall-platform/heimdall/internal/tenant"

// -----------------------------------------------------------------------------
// Role Templates
// Default action sets conferred by a membership role, before explicit
// grants are layered on top. Custom roles confer nothing by themselves;
// their access comes entirely from the membership's permission list and
// explicit grants.
// -----------------------------------------------------------------------------

var roleTemplates = map[string][]string{
	tenant.RoleOwner: {
		ActionRead, ActionWrite, ActionDelete, ActionAdmin,
		ActionShare, ActionInvite, ActionManage,
	},
	tenant.RoleAdmin: {
		ActionRead, ActionWrite, ActionDelete, ActionAdmin,
		ActionShare, ActionInvite,
	},
	tenant.RoleMember: {ActionRead, ActionWrite, ActionShare},
	tenant.RoleViewer: {ActionRead},
	tenant.RoleGuest:  {},
	tenant.RoleCustom: {},
}

// RoleActions returns the default action set for a membership role
func RoleActions(role string) ActionSet {
	return NewActionSet(roleTemplates[role]...)
}

// AdminEquivalent reports whether a role carries admin authority, the
// kind that inherits down the tenant tree
func AdminEquivalent(role string) bool {
	return role == tenant.RoleOwner || role == tenant.RoleAdmin
}
