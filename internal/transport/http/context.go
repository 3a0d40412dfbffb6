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

package http

import "context"

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	sessionJTIKey contextKey = "session_jti"
	tenantIDKey   contextKey = "tenant_id"
)

// GetUserID retrieves the authenticated user id from context.
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey).(string); ok {
		return val
	}
	return ""
}

// GetSessionJTI retrieves the session JWT id from context.
func GetSessionJTI(ctx context.Context) string {
	if val, ok := ctx.Value(sessionJTIKey).(string); ok {
		return val
	}
	return ""
}

// GetTenantID retrieves the session's tenant id from context. Empty for
// platform-level sessions.
func GetTenantID(ctx context.Context) string {
	if val, ok := ctx.Value(tenantIDKey).(string); ok {
		return val
	}
	return ""
}
