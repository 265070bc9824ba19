package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig is the configuration file structure. YAML and TOML files share
// the same keys.
type FileConfig struct {
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging,omitempty"`
	Server  *FileServerConfig  `yaml:"server,omitempty" toml:"server,omitempty"`
	Update  *FileUpdateConfig  `yaml:"update,omitempty" toml:"update,omitempty"`
	Portal  *FilePortalConfig  `yaml:"portal,omitempty" toml:"portal,omitempty"`
	Audit   *FileAuditConfig   `yaml:"audit,omitempty" toml:"audit,omitempty"`
	Zones   []FileZoneConfig   `yaml:"zones,omitempty" toml:"zones,omitempty"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // json, text
}

// FileServerConfig holds the update and health endpoint settings.
type FileServerConfig struct {
	ListenAddr   string   `yaml:"listen_addr,omitempty" toml:"listen_addr,omitempty"`
	HealthPort   int      `yaml:"health_port,omitempty" toml:"health_port,omitempty"`
	SecretToken  string   `yaml:"secret_token,omitempty" toml:"secret_token,omitempty"`
	AllowedHosts []string `yaml:"allowed_hosts,omitempty" toml:"allowed_hosts,omitempty"`
	DefaultZone  string   `yaml:"default_zone,omitempty" toml:"default_zone,omitempty"`
	TrustProxy   *bool    `yaml:"trust_proxy,omitempty" toml:"trust_proxy,omitempty"`
}

// FileUpdateConfig holds record update settings.
type FileUpdateConfig struct {
	TTL    int   `yaml:"ttl,omitempty" toml:"ttl,omitempty"`
	DryRun *bool `yaml:"dry_run,omitempty" toml:"dry_run,omitempty"` // pointer to distinguish unset from false
}

// FilePortalConfig holds the members portal settings.
type FilePortalConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	User       string `yaml:"user,omitempty" toml:"user,omitempty"`
	Password   string `yaml:"password,omitempty" toml:"password,omitempty"`
	TOTPSecret string `yaml:"totp_secret,omitempty" toml:"totp_secret,omitempty"`
	Timeout    string `yaml:"timeout,omitempty" toml:"timeout,omitempty"` // Go duration, e.g. "1s"
}

// FileAuditConfig holds the Redis stream sink settings.
type FileAuditConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty" toml:"redis_addr,omitempty"`
	RedisDB   int    `yaml:"redis_db,omitempty" toml:"redis_db,omitempty"`
	Stream    string `yaml:"stream,omitempty" toml:"stream,omitempty"`
}

// FileZoneConfig declares one zone.
type FileZoneConfig struct {
	Name   string            `yaml:"name" toml:"name"`
	Type   string            `yaml:"type" toml:"type"`
	Config map[string]string `yaml:"config,omitempty" toml:"config,omitempty"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if s := c.Server; s != nil {
		s.ListenAddr = InterpolateEnvVars(s.ListenAddr)
		s.SecretToken = InterpolateEnvVars(s.SecretToken)
		s.DefaultZone = InterpolateEnvVars(s.DefaultZone)
		for i := range s.AllowedHosts {
			s.AllowedHosts[i] = InterpolateEnvVars(s.AllowedHosts[i])
		}
	}

	if p := c.Portal; p != nil {
		p.BaseURL = InterpolateEnvVars(p.BaseURL)
		p.User = InterpolateEnvVars(p.User)
		p.Password = InterpolateEnvVars(p.Password)
		p.TOTPSecret = InterpolateEnvVars(p.TOTPSecret)
		p.Timeout = InterpolateEnvVars(p.Timeout)
	}

	if a := c.Audit; a != nil {
		a.RedisAddr = InterpolateEnvVars(a.RedisAddr)
		a.Stream = InterpolateEnvVars(a.Stream)
	}

	for i := range c.Zones {
		z := &c.Zones[i]
		z.Name = InterpolateEnvVars(z.Name)
		z.Type = InterpolateEnvVars(z.Type)
		for k, v := range z.Config {
			z.Config[k] = InterpolateEnvVars(v)
		}
	}
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) configuration file.
// Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml or .toml)", ext)
	}

	cfg.interpolateEnvVars()
	return &cfg, nil
}

// GetConfigFilePath returns the config file path from DYNHOST_CONFIG.
func GetConfigFilePath() string {
	return os.Getenv(envPrefixRoot + "CONFIG")
}
