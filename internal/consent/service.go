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
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/id"
	"github.com/heimdall-platform/heimdall/internal/oauth2"
)

// Service decides when the consent screen can be skipped and records
// the user's decisions
type Service struct {
	repo        Repository
	clients     oauth2.ClientRepository
	auditLogger audit.Logger
}

// NewService creates a new consent service
func NewService(repo Repository, clients oauth2.ClientRepository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, clients: clients, auditLogger: auditLogger}
}

// HasConsent reports whether the user already approved the client for
// every requested scope. Trusted (first-party) clients skip consent
// entirely. A revoked or expired consent never satisfies a request,
// and neither does an active consent covering only a subset.
func (s *Service) HasConsent(ctx context.Context, userID, clientID, requestedScope string) (bool, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client.Trusted {
		return true, nil
	}

	c, err := s.repo.Get(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return false, nil
		}
		return false, err
	}
	if !c.IsActive(time.Now()) {
		return false, nil
	}
	return c.Covers(requestedScope), nil
}

// Grant records the user's approval of a client for the given scopes.
// Scopes union into any prior consent; a previously revoked consent is
// reinstated with only the newly granted scopes.
func (s *Service) Grant(ctx context.Context, userID, clientID, scope string, expiresAt *time.Time) (*Consent, error) {
	scopes := strings.Fields(scope)
	now := time.Now()

	existing, err := s.repo.Get(ctx, userID, clientID)
	switch {
	case err == nil && existing.RevokedAt == nil:
		for _, sc := range scopes {
			if !slices.Contains(existing.Scopes, sc) {
				existing.Scopes = append(existing.Scopes, sc)
			}
		}
		slices.Sort(existing.Scopes)
		existing.UpdatedAt = now
		existing.ExpiresAt = expiresAt
		if err := s.repo.Upsert(ctx, existing); err != nil {
			return nil, err
		}
		s.auditGrant(ctx, userID, clientID, existing.Scopes)
		return existing, nil

	case err == nil:
		// Revoked record: reinstate fresh, dropping the old scope set.
		slices.Sort(scopes)
		existing.Scopes = scopes
		existing.GrantedAt = now
		existing.UpdatedAt = now
		existing.ExpiresAt = expiresAt
		existing.RevokedAt = nil
		if err := s.repo.Upsert(ctx, existing); err != nil {
			return nil, err
		}
		s.auditGrant(ctx, userID, clientID, existing.Scopes)
		return existing, nil

	case errors.Is(err, ErrConsentNotFound):
		slices.Sort(scopes)
		c := &Consent{
			ID:        id.NewUUIDv7(),
			UserID:    userID,
			ClientID:  clientID,
			Scopes:    scopes,
			GrantedAt: now,
			UpdatedAt: now,
			ExpiresAt: expiresAt,
		}
		if err := s.repo.Upsert(ctx, c); err != nil {
			return nil, err
		}
		s.auditGrant(ctx, userID, clientID, c.Scopes)
		return c, nil

	default:
		return nil, err
	}
}

func (s *Service) auditGrant(ctx context.Context, userID, clientID string, scopes []string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentGranted,
		ActorID:  userID,
		Resource: clientID,
		Metadata: map[string]any{"scopes": strings.Join(scopes, " ")},
	})
}

// Revoke withdraws the user's consent for a client. Tokens already
// issued stay valid until they expire or are revoked separately.
func (s *Service) Revoke(ctx context.Context, userID, clientID string) error {
	if err := s.repo.Revoke(ctx, userID, clientID); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeConsentRevoked,
		ActorID:  userID,
		Resource: clientID,
	})
	return nil
}

// List returns the user's active consents
func (s *Service) List(ctx context.Context, userID string) ([]*Consent, error) {
	return s.repo.ListByUser(ctx, userID)
}
