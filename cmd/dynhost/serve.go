package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/dynhost/internal/health"
	"gitlab.bluewillows.net/root/dynhost/internal/metrics"
	"gitlab.bluewillows.net/root/dynhost/internal/server"
)

// shutdownTimeout bounds server shutdown and the wait for running portal
// sessions.
const shutdownTimeout = 5 * time.Second

func newCmdServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the update endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

// serve runs the health and update servers until ctx is done.
func (a *app) serve(ctx context.Context) error {
	logger, cfg := a.logger, a.cfg

	metrics.SetBuildInfo(Version, runtime.Version())
	logger.Info("dynhost starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("config", cfg.String()),
	)

	d, err := a.newDispatcher()
	if err != nil {
		return err
	}

	healthServer := health.New(cfg.HealthPort, health.WithLogger(logger))
	healthServer.RegisterZones(a.zones.All()...)
	if a.redis != nil {
		healthServer.RegisterOptional("audit", a.redis.Ping)
	}
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	updateServer := server.New(server.Config{
		Addr:         cfg.ListenAddr,
		Token:        cfg.SecretToken,
		AllowedHosts: cfg.AllowedHosts,
		DefaultZone:  cfg.DefaultZone,
		TrustProxy:   cfg.TrustProxy,
	}, d, server.WithLogger(logger), server.WithMetrics(metrics.Recorder{}))

	if err := updateServer.Start(); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = healthServer.Shutdown(shutdownCtx)
		return fmt.Errorf("starting update server: %w", err)
	}

	logger.Info("dynhost ready",
		slog.String("addr", updateServer.Addr()),
		slog.Int("zones", a.zones.Count()),
		slog.Int("health_port", cfg.HealthPort),
		slog.Bool("portal", cfg.Portal.Enabled),
		slog.Bool("dry_run", cfg.DryRun),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := updateServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("update server shutdown error", slog.String("error", err.Error()))
	}
	// Portal sessions outlive their requests; give them the rest of the budget.
	if err := d.Drain(shutdownCtx); err != nil {
		logger.Warn("portal sessions still running at shutdown", slog.String("error", err.Error()))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("dynhost shutdown complete")
	return nil
}
