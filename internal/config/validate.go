package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig performs cross-field validation on the complete configuration.
func validateConfig(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log level: must be debug, info, warn or error, got %q", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log format: must be json or text, got %q", cfg.LogFormat))
	}

	if cfg.TTL <= 0 {
		errs = append(errs, fmt.Sprintf("ttl: must be positive, got %d", cfg.TTL))
	}
	if cfg.HealthPort < 1 || cfg.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("health port: must be between 1 and 65535, got %d", cfg.HealthPort))
	}

	errs = append(errs, validatePortal(&cfg.Portal)...)
	errs = append(errs, validateZones(cfg)...)

	return errs
}

func validatePortal(p *PortalConfig) []string {
	if !p.Enabled {
		return nil
	}

	var errs []string
	if u, err := url.Parse(p.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("portal base URL: must be an absolute http(s) URL, got %q", p.BaseURL))
	}
	if p.User == "" {
		errs = append(errs, "portal user: required when the portal is enabled")
	}
	if p.Password == "" {
		errs = append(errs, "portal password: required when the portal is enabled")
	}
	if p.TOTPSecret == "" {
		errs = append(errs, "portal TOTP secret: required when the portal is enabled")
	}
	if p.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("portal timeout: must be positive, got %s", p.Timeout))
	}
	return errs
}

func validateZones(cfg *Config) []string {
	var errs []string

	seen := make(map[string]bool)
	for _, z := range cfg.Zones {
		if seen[z.Name] {
			errs = append(errs, fmt.Sprintf("duplicate zone name: %q", z.Name))
		}
		seen[z.Name] = true

		if z.Type == "" {
			errs = append(errs, fmt.Sprintf("%sTYPE: zone %q has no type", envPrefix(z.Name), z.Name))
		}
	}

	if cfg.DefaultZone != "" && !seen[cfg.DefaultZone] {
		errs = append(errs, fmt.Sprintf("default zone %q is not configured", cfg.DefaultZone))
	}

	return errs
}
