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

package oauth2

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-platform/heimdall/internal/audit"
)

// In-memory repositories. Mutex-guarded so the concurrency tests
// exercise the same one-winner semantics the SQL implementations give.

type memClientRepo struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func newMemClientRepo() *memClientRepo {
	return &memClientRepo{clients: make(map[string]*Client)}
}

func (m *memClientRepo) Create(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ClientID] = c
	return nil
}

func (m *memClientRepo) GetByClientID(_ context.Context, clientID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memClientRepo) Update(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ClientID]; !ok {
		return ErrClientNotFound
	}
	m.clients[c.ClientID] = c
	return nil
}

func (m *memClientRepo) ListByTenant(_ context.Context, tenantID string) ([]*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Client
	for _, c := range m.clients {
		if c.TenantID == tenantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*AuthorizationCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[string]*AuthorizationCode)}
}

func (m *memCodeRepo) Create(_ context.Context, c *AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = c
	return nil
}

func (m *memCodeRepo) GetByCode(_ context.Context, code string) (*AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCodeRepo) Consume(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return ErrCodeNotFound
	}
	if c.UsedAt != nil || c.RevokedAt != nil {
		return ErrCodeConsumed
	}
	now := time.Now()
	c.UsedAt = &now
	return nil
}

func (m *memCodeRepo) Revoke(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return ErrCodeNotFound
	}
	now := time.Now()
	c.RevokedAt = &now
	return nil
}

func (m *memCodeRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.codes {
		if c.ExpiresAt.Before(cutoff) {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

type memAccessRepo struct {
	mu     sync.Mutex
	tokens map[string]*AccessToken
}

func newMemAccessRepo() *memAccessRepo {
	return &memAccessRepo{tokens: make(map[string]*AccessToken)}
}

func (m *memAccessRepo) Create(_ context.Context, t *AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.TokenHash] = t
	return nil
}

func (m *memAccessRepo) GetByTokenHash(_ context.Context, hash string) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memAccessRepo) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return ErrTokenNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (m *memAccessRepo) RevokeByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			now := time.Now()
			t.RevokedAt = &now
			return nil
		}
	}
	return ErrTokenNotFound
}

func (m *memAccessRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

type memRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{tokens: make(map[string]*RefreshToken)}
}

func (m *memRefreshRepo) Create(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.TokenHash] = t
	return nil
}

func (m *memRefreshRepo) GetByTokenHash(_ context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRefreshRepo) Rotate(_ context.Context, oldHash string, successor *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldHash]
	if !ok {
		return ErrTokenNotFound
	}
	if old.RevokedAt != nil {
		return ErrRotationConflict
	}
	now := time.Now()
	old.RevokedAt = &now
	old.RotatedTo = successor.ID
	m.tokens[successor.TokenHash] = successor
	return nil
}

func (m *memRefreshRepo) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return ErrTokenNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (m *memRefreshRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

type stubSessions struct {
	active map[string]bool
}

func (s *stubSessions) IsSessionActive(_ context.Context, jti string) (bool, error) {
	return s.active[jti], nil
}

type testEnv struct {
	svc      *Service
	clients  *memClientRepo
	codes    *memCodeRepo
	access   *memAccessRepo
	refresh  *memRefreshRepo
	sessions *stubSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clients:  newMemClientRepo(),
		codes:    newMemCodeRepo(),
		access:   newMemAccessRepo(),
		refresh:  newMemRefreshRepo(),
		sessions: &stubSessions{active: map[string]bool{"sess-1": true}},
	}
	// Fast Argon2 parameters keep the suite quick.
	hasher := NewSecretHasher(8*1024, 1, 1, 16, 32)
	env.svc = NewService(env.clients, env.codes, env.access, env.refresh, hasher, env.sessions, audit.NewSlogLogger(), Config{})
	return env
}

func (e *testEnv) registerClient(t *testing.T, input RegisterClientInput) (*Client, string) {
	t.Helper()
	if input.Name == "" {
		input.Name = "Test App"
	}
	if len(input.RedirectURIs) == 0 {
		input.RedirectURIs = []string{"https://app.example.com/callback"}
	}
	if len(input.AllowedScopes) == 0 {
		input.AllowedScopes = []string{"openid", "profile", "email"}
	}
	client, secret, err := e.svc.RegisterClient(context.Background(), input)
	require.NoError(t, err)
	return client, secret
}

func (e *testEnv) issueCode(t *testing.T, client *Client, req *AuthorizeRequest) *AuthorizationCode {
	t.Helper()
	req.ClientID = client.ClientID
	if req.RedirectURI == "" {
		req.RedirectURI = client.RedirectURIs[0]
	}
	if req.ResponseType == "" {
		req.ResponseType = "code"
	}
	_, verr := e.svc.ValidateAuthorizeRequest(context.Background(), req)
	require.Nil(t, verr)
	code, err := e.svc.CreateAuthorizationCode(context.Background(), req, "user-1", "sess-1")
	require.NoError(t, err)
	return code
}

// TestPurpose: Validates client registration returns the plaintext secret exactly once and stores only its hash.
// Scope: Unit Test
// Security: Credential storage (secrets never persisted in plaintext)
// Expected: Stored record carries an Argon2id hash differing from the secret; public clients get no secret and forced PKCE.
// Test Case ID: OAUTH-01
func TestOAuth2_RegisterClient(t *testing.T) {
	env := newTestEnv(t)

	client, secret := env.registerClient(t, RegisterClientInput{})
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, secret, client.ClientSecretHash)
	assert.Contains(t, client.ClientSecretHash, "$argon2id$")
	assert.Equal(t, ClientStatusActive, client.Status)

	public, pubSecret := env.registerClient(t, RegisterClientInput{Name: "SPA", Public: true})
	assert.Empty(t, pubSecret)
	assert.Empty(t, public.ClientSecretHash)
	assert.True(t, public.RequirePKCE, "public clients must use PKCE")
}

// TestPurpose: Validates authorization request checks: unknown client, unregistered redirect URI, and missing PKCE challenge for PKCE-required clients.
// Scope: Unit Test
// Security: Open redirect prevention, PKCE enforcement
// Expected: Redirect URI errors are not redirectable; a PKCE-required client without code_challenge gets invalid_request.
// Test Case ID: OAUTH-02
func TestOAuth2_ValidateAuthorizeRequest(t *testing.T) {
	env := newTestEnv(t)
	client, _ := env.registerClient(t, RegisterClientInput{RequirePKCE: true})

	_, verr := env.svc.ValidateAuthorizeRequest(context.Background(), &AuthorizeRequest{
		ClientID: "nope", RedirectURI: "https://app.example.com/callback", ResponseType: "code",
	})
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidClient, verr.Code)

	_, verr = env.svc.ValidateAuthorizeRequest(context.Background(), &AuthorizeRequest{
		ClientID: client.ClientID, RedirectURI: "https://evil.example.com/cb", ResponseType: "code",
	})
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidRequest, verr.Code)
	assert.Empty(t, verr.State, "redirect errors must not carry state back")

	// Prefix of a registered URI is still a mismatch.
	_, verr = env.svc.ValidateAuthorizeRequest(context.Background(), &AuthorizeRequest{
		ClientID: client.ClientID, RedirectURI: "https://app.example.com/callback/extra", ResponseType: "code",
	})
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidRequest, verr.Code)

	_, verr = env.svc.ValidateAuthorizeRequest(context.Background(), &AuthorizeRequest{
		ClientID: client.ClientID, RedirectURI: client.RedirectURIs[0], ResponseType: "code", State: "xyz",
	})
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidRequest, verr.Code)
	assert.Contains(t, verr.Description, "code_challenge")
	assert.Equal(t, "xyz", verr.State)

	_, verr = env.svc.ValidateAuthorizeRequest(context.Background(), &AuthorizeRequest{
		ClientID: client.ClientID, RedirectURI: client.RedirectURIs[0], ResponseType: "code",
		Scope: "admin:everything",
	})
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidScope, verr.Code)
}

// TestPurpose: Validates a successful authorization code exchange with an S256 PKCE verifier.
// Scope: Unit Test
// Security: Authorization code grant with PKCE (RFC 6749, RFC 7636)
// Expected: Exchange returns access and refresh tokens; the code is marked consumed.
// Test Case ID: OAUTH-03
func TestOAuth2_ExchangeCode_Success(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		Scope:               "openid profile",
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})

	resp, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code.Code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: secret,
		CodeVerifier: verifier,
	})
	require.Nil(t, terr)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "openid profile", resp.Scope)

	stored, err := env.codes.GetByCode(context.Background(), code.Code)
	require.NoError(t, err)
	assert.NotNil(t, stored.UsedAt)
}

// TestPurpose: Validates that a wrong PKCE verifier, a mismatched redirect URI, and bad client credentials all fail without leaking which check tripped.
// Scope: Unit Test
// Security: Undifferentiated grant failures (enumeration resistance)
// Expected: Each failure surfaces as invalid_grant or invalid_client with a generic description; the code stays unconsumed.
// Test Case ID: OAUTH-04
func TestOAuth2_ExchangeCode_Failures(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})

	base := TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code.Code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: secret,
		CodeVerifier: verifier,
	}

	bad := base
	bad.ClientSecret = "wrong"
	_, terr := env.svc.ExchangeCodeForToken(context.Background(), &bad)
	require.NotNil(t, terr)
	assert.Equal(t, ErrInvalidClient, terr.Code)

	bad = base
	bad.CodeVerifier = "wrong-verifier-wrong-verifier-wrong-verifier-wrong"
	_, terr = env.svc.ExchangeCodeForToken(context.Background(), &bad)
	require.NotNil(t, terr)
	assert.Equal(t, ErrInvalidGrant, terr.Code)

	bad = base
	bad.RedirectURI = "https://evil.example.com/cb"
	_, terr = env.svc.ExchangeCodeForToken(context.Background(), &bad)
	require.NotNil(t, terr)
	assert.Equal(t, ErrInvalidGrant, terr.Code)

	// All failures above left the code unconsumed; the real exchange
	// still succeeds.
	resp, terr := env.svc.ExchangeCodeForToken(context.Background(), &base)
	require.Nil(t, terr)
	assert.NotEmpty(t, resp.AccessToken)
}

// TestPurpose: Validates authorization code single-use under concurrent replay.
// Scope: Concurrency Test
// Security: Code replay prevention (RFC 6749 §4.1.2)
// Expected: Of N concurrent exchanges of the same code exactly one succeeds; the rest get invalid_grant.
// Test Case ID: OAUTH-05
func TestOAuth2_ExchangeCode_ConcurrentReplay(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan *Error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
				GrantType:    GrantTypeAuthorizationCode,
				Code:         code.Code,
				RedirectURI:  client.RedirectURIs[0],
				ClientID:     client.ClientID,
				ClientSecret: secret,
				CodeVerifier: verifier,
			})
			results <- terr
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for terr := range results {
		if terr == nil {
			wins++
		} else {
			losses++
			assert.Equal(t, ErrInvalidGrant, terr.Code)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, losses)
}

// TestPurpose: Validates refresh token rotation revokes the presented token and that replaying it fails.
// Scope: Unit Test
// Security: Refresh token rotation (OAuth 2.0 Security BCP)
// Expected: Refresh succeeds once per token; the old token then yields invalid_grant.
// Test Case ID: OAUTH-06
func TestOAuth2_RefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		Scope:               "openid profile",
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})
	first, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, Code: code.Code,
		RedirectURI: client.RedirectURIs[0], ClientID: client.ClientID,
		ClientSecret: secret, CodeVerifier: verifier,
	})
	require.Nil(t, terr)

	second, terr := env.svc.RefreshAccessToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeRefreshToken, RefreshToken: first.RefreshToken,
		ClientID: client.ClientID, ClientSecret: secret,
	})
	require.Nil(t, terr)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	_, terr = env.svc.RefreshAccessToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeRefreshToken, RefreshToken: first.RefreshToken,
		ClientID: client.ClientID, ClientSecret: secret,
	})
	require.NotNil(t, terr)
	assert.Equal(t, ErrInvalidGrant, terr.Code)

	// Scope widening on refresh is refused.
	_, terr = env.svc.RefreshAccessToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeRefreshToken, RefreshToken: second.RefreshToken,
		ClientID: client.ClientID, ClientSecret: secret, Scope: "openid profile email",
	})
	require.NotNil(t, terr)
	assert.Equal(t, ErrInvalidScope, terr.Code)
}

// TestPurpose: Validates refresh token rotation under concurrent use of the same token.
// Scope: Concurrency Test
// Security: Stolen refresh token replay containment
// Expected: Exactly one concurrent refresh wins; every other caller gets invalid_grant.
// Test Case ID: OAUTH-07
func TestOAuth2_Refresh_ConcurrentRotation(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})
	first, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, Code: code.Code,
		RedirectURI: client.RedirectURIs[0], ClientID: client.ClientID,
		ClientSecret: secret, CodeVerifier: verifier,
	})
	require.Nil(t, terr)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan *Error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, terr := env.svc.RefreshAccessToken(context.Background(), &TokenRequest{
				GrantType: GrantTypeRefreshToken, RefreshToken: first.RefreshToken,
				ClientID: client.ClientID, ClientSecret: secret,
			})
			results <- terr
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for terr := range results {
		if terr == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

// TestPurpose: Validates token introspection reports session-bound liveness and RFC 7009 revocation semantics.
// Scope: Unit Test
// Security: Session-bound access tokens, token revocation (RFC 7662, RFC 7009)
// Expected: An unexpired token goes inactive the moment its session dies; revoking an unknown token is not an error.
// Test Case ID: OAUTH-08
func TestOAuth2_Introspect_And_Revoke(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		Scope:               "openid",
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})
	resp, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, Code: code.Code,
		RedirectURI: client.RedirectURIs[0], ClientID: client.ClientID,
		ClientSecret: secret, CodeVerifier: verifier,
	})
	require.Nil(t, terr)

	intro, err := env.svc.Introspect(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, intro.Active)
	assert.Equal(t, "user-1", intro.UserID)
	assert.Equal(t, client.ClientID, intro.ClientID)

	// Session dies, token goes inactive even though it has not expired.
	env.sessions.active["sess-1"] = false
	intro, err = env.svc.Introspect(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.False(t, intro.Active)
	env.sessions.active["sess-1"] = true

	// Unknown token introspects inactive, never errors.
	intro, err = env.svc.Introspect(context.Background(), "not-a-token")
	require.NoError(t, err)
	assert.False(t, intro.Active)

	// RFC 7009: unknown token revocation succeeds silently.
	rerr := env.svc.RevokeToken(context.Background(), "not-a-token", client.ClientID, secret)
	assert.Nil(t, rerr)

	// Revoking the refresh token cascades to its access token.
	rerr = env.svc.RevokeToken(context.Background(), resp.RefreshToken, client.ClientID, secret)
	assert.Nil(t, rerr)
	intro, err = env.svc.Introspect(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.False(t, intro.Active)
}

// TestPurpose: Validates client authentication for confidential and public clients and inactive client rejection.
// Scope: Unit Test
// Security: Client authentication (RFC 6749 §2.3)
// Expected: Wrong secret, secret on a public client, and suspended clients all fail closed.
// Test Case ID: OAUTH-09
func TestOAuth2_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{})
	public, _ := env.registerClient(t, RegisterClientInput{Name: "SPA", Public: true})

	got, err := env.svc.Authenticate(context.Background(), client.ClientID, secret)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, got.ClientID)

	_, err = env.svc.Authenticate(context.Background(), client.ClientID, "wrong")
	assert.ErrorIs(t, err, ErrDomainInvalidClient)

	_, err = env.svc.Authenticate(context.Background(), public.ClientID, "")
	assert.NoError(t, err)
	_, err = env.svc.Authenticate(context.Background(), public.ClientID, "unexpected")
	assert.ErrorIs(t, err, ErrDomainInvalidClient)

	require.NoError(t, env.svc.SuspendClient(context.Background(), client.ClientID, "admin-1"))
	_, err = env.svc.Authenticate(context.Background(), client.ClientID, secret)
	assert.ErrorIs(t, err, ErrClientInactive)
}

// TestPurpose: Validates that clients without the refresh_token grant never receive a refresh credential.
// Scope: Unit Test
// Security: Grant-type confinement (RFC 6749 §5.1; no unrequested credentials on the wire)
// Expected: The token response omits refresh_token and no refresh token is persisted; the access token still works.
// Test Case ID: OAUTH-10
func TestOAuth2_ExchangeCode_NoRefreshGrantForCodeOnlyClient(t *testing.T) {
	env := newTestEnv(t)
	client, secret := env.registerClient(t, RegisterClientInput{
		GrantTypes: []string{GrantTypeAuthorizationCode},
	})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		Scope:               "openid",
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})

	resp, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code.Code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: secret,
		CodeVerifier: verifier,
	})
	require.Nil(t, terr)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)

	env.refresh.mu.Lock()
	stored := len(env.refresh.tokens)
	env.refresh.mu.Unlock()
	assert.Zero(t, stored, "no refresh token may be persisted for a code-only client")

	intro, err := env.svc.Introspect(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, intro.Active)
}

// TestPurpose: Validates that a refresh token can never expire before its paired access token.
// Scope: Unit Test
// Security: Token lifetime ordering
// Expected: Registration rejects refresh lifetimes at or below the access lifetime; a valid ordering is accepted and honored at issuance.
// Test Case ID: OAUTH-11
func TestOAuth2_RegisterClient_LifetimeOrdering(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.RegisterClient(context.Background(), RegisterClientInput{
		Name:                 "Inverted",
		RedirectURIs:         []string{"https://app.example.com/callback"},
		AccessTokenLifetime:  3600,
		RefreshTokenLifetime: 60,
	})
	require.Error(t, err)

	_, _, err = env.svc.RegisterClient(context.Background(), RegisterClientInput{
		Name:                 "Equal",
		RedirectURIs:         []string{"https://app.example.com/callback"},
		AccessTokenLifetime:  3600,
		RefreshTokenLifetime: 3600,
	})
	require.Error(t, err, "equal lifetimes are rejected; refresh must strictly exceed access")

	client, secret := env.registerClient(t, RegisterClientInput{
		AccessTokenLifetime:  60,
		RefreshTokenLifetime: 3600,
	})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code := env.issueCode(t, client, &AuthorizeRequest{
		Scope:               "openid",
		CodeChallenge:       ComputeCodeChallenge(verifier, CodeChallengeMethodS256),
		CodeChallengeMethod: CodeChallengeMethodS256,
	})
	resp, terr := env.svc.ExchangeCodeForToken(context.Background(), &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code.Code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ClientID,
		ClientSecret: secret,
		CodeVerifier: verifier,
	})
	require.Nil(t, terr)
	require.NotEmpty(t, resp.RefreshToken)

	refresh, err := env.refresh.GetByTokenHash(context.Background(), HashToken(resp.RefreshToken))
	require.NoError(t, err)
	access, err := env.access.GetByTokenHash(context.Background(), HashToken(resp.AccessToken))
	require.NoError(t, err)
	assert.True(t, refresh.ExpiresAt.After(access.ExpiresAt),
		"refresh expiry must exceed access expiry")
}
