package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/dynhost/internal/audit"
	"gitlab.bluewillows.net/root/dynhost/internal/config"
	"gitlab.bluewillows.net/root/dynhost/internal/dispatcher"
	"gitlab.bluewillows.net/root/dynhost/internal/logging"
	"gitlab.bluewillows.net/root/dynhost/internal/metrics"
	"gitlab.bluewillows.net/root/dynhost/internal/portal"
	"gitlab.bluewillows.net/root/dynhost/internal/reconciler"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
	"gitlab.bluewillows.net/root/dynhost/providers/clouddns"
	"gitlab.bluewillows.net/root/dynhost/providers/cloudflare"
	"gitlab.bluewillows.net/root/dynhost/providers/dnsmasq"
	"gitlab.bluewillows.net/root/dynhost/providers/memory"
	"gitlab.bluewillows.net/root/dynhost/providers/rfc2136"
	"gitlab.bluewillows.net/root/dynhost/providers/webhook"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	zones   *zone.Registry
	audit   audit.Sink
	redis   *audit.RedisSink // nil unless the audit stream is enabled
	closers []func()
}

// loadConfig reads the configuration and applies the logging flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, nil
}

// newApp builds the logger, the zones and the audit sink.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
	slog.SetDefault(logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		zones:  zone.NewRegistry(logger),
	}
	registerZoneFactories(a.zones, logger)

	for _, zc := range cfg.Zones {
		if err := a.zones.CreateInstance(zc.Name, zc.Type, zc.Settings); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating zone %s: %w", zc.Name, err)
		}
	}
	for _, z := range a.zones.All() {
		if c, ok := z.(io.Closer); ok {
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
	}

	a.audit = audit.NewLogSink(logger)
	if cfg.Audit.Enabled() {
		sink, err := audit.NewRedisSink(ctx, cfg.Audit.RedisAddr, cfg.Audit.RedisDB, cfg.Audit.Stream)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting audit stream: %w", err)
		}
		a.redis = sink
		a.closers = append(a.closers, sink.Close)
		a.audit = audit.Multi{a.audit, sink}
		logger.Info("audit stream enabled",
			slog.String("addr", cfg.Audit.RedisAddr),
			slog.String("stream", cfg.Audit.Stream),
		)
	}

	return a, nil
}

func registerZoneFactories(registry *zone.Registry, logger *slog.Logger) {
	// RFC 2136 dynamic updates (BIND, Knot, PowerDNS, Technitium)
	registry.RegisterFactory("rfc2136", rfc2136.Factory(logger))

	// Cloudflare batch API
	registry.RegisterFactory("cloudflare", cloudflare.Factory(logger))

	// Google Cloud DNS changes
	registry.RegisterFactory("clouddns", clouddns.Factory(logger))

	// dnsmasq host-record file, local or over SSH
	registry.RegisterFactory("dnsmasq", dnsmasq.Factory(logger))

	// Any HTTP endpoint implementing the change contract
	registry.RegisterFactory("webhook", webhook.Factory(logger))

	// In-process zone for dry runs and demos
	registry.RegisterFactory("memory", memory.Factory(logger))
}

// newPortal returns the portal session, or nil when the portal is disabled.
func (a *app) newPortal() (*portal.Session, error) {
	if !a.cfg.Portal.Enabled {
		return nil, nil
	}
	return portal.New(portal.Config{
		BaseURL: a.cfg.Portal.BaseURL,
		Credentials: portal.Credentials{
			User:       a.cfg.Portal.User,
			Password:   a.cfg.Portal.Password,
			TOTPSecret: a.cfg.Portal.TOTPSecret,
		},
		Timeout: a.cfg.Portal.Timeout,
	}, portal.WithLogger(a.logger))
}

// newDispatcher wires the reconciler, the portal and the audit sink.
func (a *app) newDispatcher() (*dispatcher.Dispatcher, error) {
	rec := reconciler.New(
		reconciler.WithTTL(a.cfg.TTL),
		reconciler.WithDryRun(a.cfg.DryRun),
		reconciler.WithLogger(a.logger),
		reconciler.WithMetrics(metrics.Recorder{}),
	)

	opts := []dispatcher.Option{
		dispatcher.WithAudit(a.audit),
		dispatcher.WithMetrics(metrics.Recorder{}),
		dispatcher.WithLogger(a.logger),
	}
	session, err := a.newPortal()
	if err != nil {
		return nil, fmt.Errorf("configuring portal: %w", err)
	}
	if session != nil {
		opts = append(opts, dispatcher.WithPortal(session))
	}

	return dispatcher.New(a.zones, rec, opts...), nil
}

// Close releases zone connections and the audit stream.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
