package config

import "log/slog"

// Load builds the configuration from defaults, the file at path and the
// environment. An empty path falls back to DYNHOST_CONFIG; with neither,
// no file is read. Every problem found is reported in one ValidationError.
func Load(path string) (*Config, error) {
	cfg := defaults()
	var errs []string
	var portalSet bool

	if path == "" {
		path = GetConfigFilePath()
	}
	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, &ValidationError{Errors: []string{"config file: " + err.Error()}}
		}
		slog.Debug("loaded configuration from file", slog.String("path", path))

		set, fErrs := applyFile(cfg, fc)
		portalSet = set
		errs = append(errs, fErrs...)
	}

	set, eErrs := applyEnv(cfg)
	portalSet = portalSet || set
	errs = append(errs, eErrs...)
	errs = append(errs, applyZonesEnv(cfg)...)

	// Credentials alone switch the portal on unless told otherwise.
	if !portalSet && cfg.Portal.User != "" {
		cfg.Portal.Enabled = true
	}

	errs = append(errs, validateConfig(cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}
