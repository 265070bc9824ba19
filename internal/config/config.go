// Package config loads dynhost configuration from defaults, an optional
// YAML or TOML file and DYNHOST_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Update endpoint
	ListenAddr   string
	HealthPort   int
	SecretToken  string
	AllowedHosts []string // "*" allows any host
	DefaultZone  string
	TrustProxy   bool

	// Record updates
	TTL    int
	DryRun bool

	Portal PortalConfig
	Audit  AuditConfig

	// Zones in declaration order.
	Zones []*ZoneConfig
}

// PortalConfig holds the members portal session settings.
type PortalConfig struct {
	Enabled    bool
	BaseURL    string
	User       string
	Password   string
	TOTPSecret string
	Timeout    time.Duration
}

// AuditConfig holds the optional Redis stream sink settings.
type AuditConfig struct {
	RedisAddr string
	RedisDB   int
	Stream    string
}

// Enabled reports whether events also go to Redis.
func (a AuditConfig) Enabled() bool {
	return a.RedisAddr != ""
}

// Zone returns the zone named name, or nil.
func (c *Config) Zone(name string) *ZoneConfig {
	for _, z := range c.Zones {
		if z.Name == name {
			return z
		}
	}
	return nil
}

// ZoneNames returns the configured zone names in order.
func (c *Config) ZoneNames() []string {
	names := make([]string, 0, len(c.Zones))
	for _, z := range c.Zones {
		names = append(names, z.Name)
	}
	return names
}

// AllowsAnyHost reports whether the allow-list admits every host.
func (c *Config) AllowsAnyHost() bool {
	for _, h := range c.AllowedHosts {
		if h == "*" {
			return true
		}
	}
	return false
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if errs := validateConfig(c); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateServer additionally checks what the update server needs.
func (c *Config) ValidateServer() error {
	errs := validateConfig(c)
	if c.SecretToken == "" {
		errs = append(errs, "DYNHOST_SECRET_TOKEN: required but not set")
	}
	if len(c.AllowedHosts) == 0 {
		errs = append(errs, "DYNHOST_ALLOWED_HOSTS: required but not set (use * to allow any host)")
	}
	if len(c.Zones) == 0 {
		errs = append(errs, "DYNHOST_ZONES: at least one zone is required")
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// String summarises the configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s health_port=%d zones=%v default_zone=%s ttl=%d dry_run=%t portal=%t audit_redis=%t",
		c.ListenAddr, c.HealthPort, c.ZoneNames(), c.DefaultZone, c.TTL, c.DryRun, c.Portal.Enabled, c.Audit.Enabled())
}
