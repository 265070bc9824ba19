package dnsmasq

import (
	"log/slog"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Factory returns a zone.Factory for dnsmasq zones.
func Factory(logger *slog.Logger) zone.Factory {
	return func(name string, configMap map[string]string) (zone.Zone, error) {
		cfg, err := LoadConfigFromMap(name, configMap)
		if err != nil {
			return nil, err
		}

		logger.Debug("dnsmasq zone created",
			slog.String("name", name),
			slog.String("path", cfg.ConfigFilePath()),
			slog.Bool("ssh", cfg.IsSSHEnabled()),
		)
		return New(name, cfg, WithProviderLogger(logger))
	}
}
