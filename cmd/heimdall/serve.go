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
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/heimdall-platform/heimdall/internal/audit"
	"github.com/heimdall-platform/heimdall/internal/authz"
	"github.com/heimdall-platform/heimdall/internal/config"
	"github.com/heimdall-platform/heimdall/internal/consent"
	"github.com/heimdall-platform/heimdall/internal/oauth2"
	"github.com/heimdall-platform/heimdall/internal/observability/logger"
	"github.com/heimdall-platform/heimdall/internal/observability/metrics"
	"github.com/heimdall-platform/heimdall/internal/observability/tracing"
	"github.com/heimdall-platform/heimdall/internal/session"
	"github.com/heimdall-platform/heimdall/internal/store/postgres"
	"github.com/heimdall-platform/heimdall/internal/tenant"
	transportHTTP "github.com/heimdall-platform/heimdall/internal/transport/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Heimdall HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting heimdall")

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	if _, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	tenantRepo := postgres.NewTenantRepository(db)
	memberRepo := postgres.NewMembershipRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	codeRepo := postgres.NewAuthorizationCodeRepository(db)
	accessRepo := postgres.NewAccessTokenRepository(db)
	refreshRepo := postgres.NewRefreshTokenRepository(db)
	consentRepo := postgres.NewConsentRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	auditLogger := audit.NewSlogLogger()

	var decisionCache authz.DecisionCache = authz.NopCache{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", logger.Error(err))
			return err
		}
		defer rdb.Close()
		decisionCache = authz.NewRedisCache(rdb, cfg.Redis.TTL)
		slog.Info("permission decision cache enabled")
	}

	resolver := authz.NewResolver(tenantRepo, memberRepo, grantRepo, decisionCache, auditLogger)
	tenantService := tenant.NewService(tenantRepo, memberRepo, decisionCache, auditLogger)

	signer := session.NewTokenSigner([]byte(cfg.Session.JWTSecret), cfg.Session.Issuer, cfg.Session.Lifetime)
	sessionService := session.NewService(sessionRepo, signer, auditLogger)

	oauth2Service := oauth2.NewService(
		clientRepo, codeRepo, accessRepo, refreshRepo,
		oauth2.DefaultSecretHasher(), sessionService, auditLogger,
		oauth2.Config{
			AuthCodeLifetime:     cfg.Tokens.AuthCodeLifetime,
			AccessTokenLifetime:  cfg.Tokens.AccessTokenLifetime,
			RefreshTokenLifetime: cfg.Tokens.RefreshTokenLifetime,
		},
	)

	consentService := consent.NewService(consentRepo, clientRepo, auditLogger)

	handler := transportHTTP.NewHandler(
		tenantService, resolver, oauth2Service, consentService, sessionService,
		auditLogger, transportHTTP.SessionConfig{
			CookieSecure:   true,
			CookieHTTPOnly: true,
			CookieSameSite: http.SameSiteLaxMode,
		},
	)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Close()

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      transportHTTP.NewRouter(handler, rateLimiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go runSweeper(sweepCtx, cfg.Sweep, oauth2Service, sessionService)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("http server failed", logger.Error(err))
		return err
	case sig := <-stop:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logger.Error(err))
		return err
	}

	slog.Info("heimdall stopped")
	return nil
}

func connectDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
}

// runSweeper periodically purges expired codes, tokens, and sessions
func runSweeper(ctx context.Context, cfg config.SweepConfig, oauth2Service *oauth2.Service, sessionService *session.Service) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, cfg.Retention, oauth2Service, sessionService)
		}
	}
}

func sweepOnce(ctx context.Context, retention time.Duration, oauth2Service *oauth2.Service, sessionService *session.Service) {
	tokens, err := oauth2Service.SweepExpired(ctx, retention)
	if err != nil {
		slog.Error("token sweep failed", logger.Error(err))
	}
	sessions, err := sessionService.SweepExpired(ctx, retention)
	if err != nil {
		slog.Error("session sweep failed", logger.Error(err))
	}
	slog.Info("sweep completed",
		slog.Int64("tokens_purged", tokens),
		slog.Int64("sessions_purged", sessions))
}
