package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ZoneConfig declares one zone instance.
type ZoneConfig struct {
	// Name is the instance name requests refer to (e.g., "home").
	Name string

	// Type selects the provider (e.g., "rfc2136", "cloudflare").
	Type string

	// Settings holds provider-specific keys (e.g., "SERVER", "TOKEN").
	Settings map[string]string
}

// reservedZoneNames would make DYNHOST_<NAME>_* collide with global keys.
var reservedZoneNames = map[string]bool{
	"CONFIG":  true,
	"LOG":     true,
	"LISTEN":  true,
	"HEALTH":  true,
	"SECRET":  true,
	"ALLOWED": true,
	"DEFAULT": true,
	"TRUST":   true,
	"TTL":     true,
	"DRY":     true,
	"PORTAL":  true,
	"AUDIT":   true,
	"ZONES":   true,
	"TEST":    true,
}

// applyZonesEnv adds or updates the zones listed in DYNHOST_ZONES. Environment
// settings override file settings for the same zone.
func applyZonesEnv(cfg *Config) []string {
	var errs []string

	for _, name := range splitList(getEnv(envPrefixRoot + "ZONES")) {
		if reservedZoneNames[normalizeInstanceName(name)] {
			errs = append(errs, fmt.Sprintf("%sZONES: zone name %q is reserved", envPrefixRoot, name))
			continue
		}

		z := cfg.Zone(name)
		if z == nil {
			z = &ZoneConfig{Name: name, Settings: make(map[string]string)}
			cfg.Zones = append(cfg.Zones, z)
		}

		settings, zErrs := zoneSettingsFromEnv(name)
		errs = append(errs, zErrs...)
		for k, v := range settings {
			if k == "TYPE" {
				z.Type = strings.ToLower(v)
				continue
			}
			z.Settings[k] = v
		}
	}

	return errs
}

// zoneSettingsFromEnv collects DYNHOST_<NAME>_<KEY> variables. A <KEY>_FILE
// variable is read and stored under <KEY>.
func zoneSettingsFromEnv(name string) (map[string]string, []string) {
	prefix := envPrefix(name)
	settings := make(map[string]string)
	var errs []string

	// Sorted so that KEY_FILE is processed after KEY and wins.
	var keys []string
	for _, kv := range os.Environ() {
		k, _, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, prefix) && len(k) > len(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := strings.TrimPrefix(k, prefix)
		if strings.HasSuffix(key, "_FILE") {
			base := strings.TrimSuffix(key, "_FILE")
			v, err := getEnvOrFile(prefix + base)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			settings[base] = v
			continue
		}
		if v := strings.TrimSpace(getEnv(k)); v != "" {
			settings[key] = v
		}
	}

	return settings, errs
}
