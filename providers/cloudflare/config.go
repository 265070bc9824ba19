package cloudflare

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds Cloudflare-specific configuration.
type Config struct {
	Token      string // API token (Bearer authentication)
	ZoneID     string // Zone ID (optional if Zone is set)
	Zone       string // Zone name for lookup (used if ZoneID is empty)
	Proxied    bool   // Whether created records are proxied through Cloudflare
	APIURL     string // API base URL (defaults to DefaultAPIEndpoint)
	MaxRetries int    // SDK retries for failed reads; 0 sends each request once
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.Token == "" {
		errs = append(errs, "TOKEN is required")
	}
	if c.ZoneID == "" && c.Zone == "" {
		errs = append(errs, "ZONE_ID or ZONE is required")
	}
	if c.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("cloudflare config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LoadConfigFromMap creates a Config from the zone's settings.
//
// Keys: TOKEN (required), ZONE_ID or ZONE (one required), PROXIED,
// API_URL, MAX_RETRIES.
func LoadConfigFromMap(instanceName string, configMap map[string]string) (*Config, error) {
	config := &Config{
		Token:  configMap["TOKEN"],
		ZoneID: configMap["ZONE_ID"],
		Zone:   configMap["ZONE"],
		APIURL: configMap["API_URL"],
	}

	if proxiedStr := configMap["PROXIED"]; proxiedStr != "" {
		config.Proxied = parseBool(proxiedStr)
	}

	if retries := configMap["MAX_RETRIES"]; retries != "" {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_RETRIES value %q: %w", retries, err)
		}
		config.MaxRetries = n
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}

	return config, nil
}

// parseBool parses a boolean string.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
