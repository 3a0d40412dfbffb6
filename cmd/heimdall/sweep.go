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

package main

import (
	"github.com/spf13/cobra"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/config"
	"github.com/heimdall-platform/heimdall/internal/oauth2"
	"github.com/heimdall-platform/heimdall/internal/observability/logger"
	"github.com/heimdall-platform/heimdall/internal/session"
	"github.com/heimdall-platform/heimdall/internal/store/postgres"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired codes, tokens, and sessions once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.InitLogger(logger.Config{
				Level:       cfg.Observability.LogLevel,
				Format:      cfg.Observability.LogFormat,
				ServiceName: cfg.Observability.ServiceName,
			})

			db, err := connectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			auditLogger := audit.NewSlogLogger()
			signer := session.NewTokenSigner([]byte(cfg.Session.JWTSecret), cfg.Session.Issuer, cfg.Session.Lifetime)
			sessionService := session.NewService(postgres.NewSessionRepository(db), signer, auditLogger)

			oauth2Service := oauth2.NewService(
				postgres.NewClientRepository(db),
				postgres.NewAuthorizationCodeRepository(db),
				postgres.NewAccessTokenRepository(db),
				postgres.NewRefreshTokenRepository(db),
				oauth2.DefaultSecretHasher(), sessionService, auditLogger,
				oauth2.Config{},
			)

			sweepOnce(ctx, cfg.Sweep.Retention, oauth2Service, sessionService)
			return nil
		},
	}
}
