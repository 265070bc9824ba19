package rfc2136

import (
	"log/slog"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Factory returns a zone.Factory for RFC 2136 zones.
func Factory(logger *slog.Logger) zone.Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(name string, configMap map[string]string) (zone.Zone, error) {
		cfg, err := LoadConfigFromMap(name, configMap)
		if err != nil {
			return nil, err
		}

		p, err := New(name, cfg, WithProviderLogger(logger))
		if err != nil {
			return nil, err
		}

		logger.Info("RFC 2136 zone created",
			slog.String("name", name),
			slog.String("server", cfg.Server),
			slog.String("zone", cfg.Zone),
			slog.Bool("tsig", cfg.TSIGKeyName != ""),
			slog.Bool("tcp", cfg.UseTCP),
		)
		return p, nil
	}
}
