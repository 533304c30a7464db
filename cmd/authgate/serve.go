// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// ServeDeps holds injectable dependencies for the serve command.
// Nil fields fall back to production implementations.
type ServeDeps struct {
	Connect             func(ctx context.Context, dsn string) (postgres.DB, func(), error)
	ObservabilityServer func(addr string) ObservabilityServer
}

// ObservabilityServer is the subset of observability.Server the serve
// command depends on.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AuthGate service",
		Long: `Start the AuthGate service: connects to PostgreSQL, exposes
metrics and health endpoints, and sweeps expired session tokens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, nil)
		},
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("listen.metrics", config.DefaultMetricsAddr, "metrics/health HTTP address")
	cmd.Flags().String("log.format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log.level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().Duration("session.ttl", config.DefaultSessionTTL, "session token lifetime")
	cmd.Flags().Duration("session.sweep_interval", config.DefaultSweepInterval, "expired token sweep interval")

	return cmd
}

// runServe starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServe(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Connect == nil {
		deps.Connect = func(ctx context.Context, dsn string) (postgres.DB, func(), error) {
			pool, err := store.Connect(ctx, dsn)
			if err != nil {
				return nil, nil, err
			}
			return pool, pool.Close, nil
		}
	}
	if deps.ObservabilityServer == nil {
		deps.ObservabilityServer = func(addr string) ObservabilityServer {
			return observability.NewServer(addr, func() bool { return true })
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("authgate", version, cfg.Log.Format, cfg.Log.Level)

	slog.Info("starting authgate",
		"metrics_addr", cfg.Listen.Metrics,
		"session_ttl", cfg.Session.TTL,
	)

	db, closeDB, err := deps.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer closeDB()

	slog.Info("connected to database")

	tokenRepo := postgres.NewTokenRepository(db)

	tokenSvc, err := auth.NewTokenService(tokenRepo, cfg.Session.TTL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obsServer := deps.ObservabilityServer(cfg.Listen.Metrics)
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
			errutil.LogWarn(slog.Default(), "failed to stop observability server", stopErr)
		}
	}()

	go runSweeper(ctx, tokenSvc, cfg.Session.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err, ok := <-obsErrCh:
		if ok && err != nil {
			return oops.Code("OBSERVABILITY_FAILED").Wrap(err)
		}
	case <-ctx.Done():
	}

	return nil
}

// runSweeper deletes expired session tokens on a fixed interval until
// the context is cancelled.
func runSweeper(ctx context.Context, tokens *auth.TokenService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := tokens.PurgeExpired(ctx)
			if err != nil {
				errutil.LogWarn(slog.Default(), "expired token sweep failed", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged expired tokens", "count", purged)
			}
		}
	}
}
