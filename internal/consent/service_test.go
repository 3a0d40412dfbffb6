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

package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

type memConsentRepo struct {
	byKey map[string]*Consent
}

func newMemConsentRepo() *memConsentRepo {
	return &memConsentRepo{byKey: make(map[string]*Consent)}
}

func consentKey(userID, clientID string) string { return userID + "|" + clientID }

func (m *memConsentRepo) Upsert(_ context.Context, c *Consent) error {
	cp := *c
	m.byKey[consentKey(c.UserID, c.ClientID)] = &cp
	return nil
}

func (m *memConsentRepo) Get(_ context.Context, userID, clientID string) (*Consent, error) {
	c, ok := m.byKey[consentKey(userID, clientID)]
	if !ok {
		return nil, ErrConsentNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConsentRepo) Revoke(_ context.Context, userID, clientID string) error {
	c, ok := m.byKey[consentKey(userID, clientID)]
	if !ok {
		return ErrConsentNotFound
	}
	now := time.Now()
	c.RevokedAt = &now
	return nil
}

func (m *memConsentRepo) ListByUser(_ context.Context, userID string) ([]*Consent, error) {
	var out []*Consent
	for _, c := range m.byKey {
		if c.UserID == userID && c.RevokedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubClientRepo struct {
	clients map[string]*oauth2.Client
}

func (s *stubClientRepo) Create(_ context.Context, c *oauth2.Client) error { return nil }
func (s *stubClientRepo) Update(_ context.Context, c *oauth2.Client) error { return nil }
func (s *stubClientRepo) ListByTenant(_ context.Context, tenantID string) ([]*oauth2.Client, error) {
	return nil, nil
}
func (s *stubClientRepo) GetByClientID(_ context.Context, clientID string) (*oauth2.Client, error) {
	c, ok := s.clients[clientID]
	if !ok {
		return nil, oauth2.ErrClientNotFound
	}
	return c, nil
}

func newConsentService() (*Service, *memConsentRepo) {
	repo := newMemConsentRepo()
	clients := &stubClientRepo{clients: map[string]*oauth2.Client{
		"third-party": {ClientID: "third-party", Status: oauth2.ClientStatusActive},
		"first-party": {ClientID: "first-party", Status: oauth2.ClientStatusActive, Trusted: true},
	}}
	return NewService(repo, clients, audit.NewSlogLogger()), repo
}

// TestPurpose: Validates consent is required for third-party clients, skipped for trusted first-party clients, and satisfied only by a covering scope set.
// Scope: Unit Test
// Security: User consent enforcement (RFC 6749 §4.1.1)
// Expected: Trusted clients always pass; others pass only with an active consent covering every requested scope.
// Test Case ID: CONSENT-01
func TestConsent_HasConsent(t *testing.T) {
	svc, _ := newConsentService()
	ctx := context.Background()

	ok, err := svc.HasConsent(ctx, "user-1", "first-party", "openid profile email")
	require.NoError(t, err)
	assert.True(t, ok, "trusted clients skip consent")

	ok, err = svc.HasConsent(ctx, "user-1", "third-party", "openid")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Grant(ctx, "user-1", "third-party", "openid profile", nil)
	require.NoError(t, err)

	ok, err = svc.HasConsent(ctx, "user-1", "third-party", "openid")
	require.NoError(t, err)
	assert.True(t, ok, "subset of granted scopes is covered")

	ok, err = svc.HasConsent(ctx, "user-1", "third-party", "openid email")
	require.NoError(t, err)
	assert.False(t, ok, "superset of granted scopes requires fresh consent")
}

// TestPurpose: Validates that granting additional scopes unions into the existing consent record.
// Scope: Unit Test
// Expected: One record per (user, client) whose scope set grows monotonically.
// Test Case ID: CONSENT-02
func TestConsent_Grant_Union(t *testing.T) {
	svc, _ := newConsentService()
	ctx := context.Background()

	first, err := svc.Grant(ctx, "user-1", "third-party", "profile openid", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "profile"}, first.Scopes)

	second, err := svc.Grant(ctx, "user-1", "third-party", "email openid", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"email", "openid", "profile"}, second.Scopes)
}

// TestPurpose: Validates revocation blocks future consent checks and that re-granting reinstates only the new scopes.
// Scope: Unit Test
// Security: Consent withdrawal
// Expected: After revoke HasConsent is false; a later grant starts a fresh scope set.
// Test Case ID: CONSENT-03
func TestConsent_Revoke_And_Regrant(t *testing.T) {
	svc, _ := newConsentService()
	ctx := context.Background()

	_, err := svc.Grant(ctx, "user-1", "third-party", "openid profile email", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "user-1", "third-party"))

	ok, err := svc.HasConsent(ctx, "user-1", "third-party", "openid")
	require.NoError(t, err)
	assert.False(t, ok)

	regranted, err := svc.Grant(ctx, "user-1", "third-party", "openid", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, regranted.Scopes, "revoked scopes do not come back")
	assert.Nil(t, regranted.RevokedAt)

	ok, err = svc.HasConsent(ctx, "user-1", "third-party", "openid")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPurpose: Validates an expired consent never satisfies a request.
// Scope: Unit Test
// Expected: HasConsent is false once ExpiresAt has passed.
// Test Case ID: CONSENT-04
func TestConsent_Expiry(t *testing.T) {
	svc, _ := newConsentService()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Grant(ctx, "user-1", "third-party", "openid", &past)
	require.NoError(t, err)

	ok, err := svc.HasConsent(ctx, "user-1", "third-party", "openid")
	require.NoError(t, err)
	assert.False(t, ok)
}
