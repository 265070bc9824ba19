package dnsmasq

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/dynhost/pkg/sshutil"
)

// DefaultTTL applies to address= lines, which carry no TTL.
const DefaultTTL = 300

// DefaultConfigDir is the default directory for dnsmasq configuration files.
const DefaultConfigDir = "/etc/dnsmasq.d"

// DefaultConfigFile is the default name of the managed file.
const DefaultConfigFile = "dynhost.conf"

// DefaultReloadCommand is the default command to reload dnsmasq configuration.
const DefaultReloadCommand = "systemctl reload dnsmasq"

// Config holds dnsmasq-specific configuration.
type Config struct {
	ConfigDir     string
	ConfigFile    string
	ReloadCommand string // empty disables the reload
	Domain        string // names outside this domain are rejected (optional)
	TTL           int

	// SSH is set when the file lives on a remote host.
	SSH *sshutil.Config
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.ConfigDir == "" {
		errs = append(errs, "CONFIG_DIR is required")
	}
	if c.ConfigFile == "" || strings.Contains(c.ConfigFile, "/") {
		errs = append(errs, "CONFIG_FILE must be a file name")
	}
	if c.TTL <= 0 {
		errs = append(errs, "TTL must be positive")
	}
	if c.SSH != nil {
		if err := c.SSH.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("dnsmasq config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsSSHEnabled reports whether the file is managed over SSH.
func (c *Config) IsSSHEnabled() bool {
	return c.SSH != nil
}

// ConfigFilePath returns the full path to the managed file. Remote paths
// always use forward slashes.
func (c *Config) ConfigFilePath() string {
	return path.Join(c.ConfigDir, c.ConfigFile)
}

// LoadConfigFromMap creates a Config from zone settings.
//
// Keys: CONFIG_DIR, CONFIG_FILE, RELOAD_COMMAND ("none" disables it),
// DOMAIN, TTL. Setting SSH_HOST switches to remote management; the SSH_*
// keys are described in sshutil.LoadConfigFromMap.
func LoadConfigFromMap(instanceName string, configMap map[string]string) (*Config, error) {
	config := &Config{
		ConfigDir:     getMapWithDefault(configMap, "CONFIG_DIR", DefaultConfigDir),
		ConfigFile:    getMapWithDefault(configMap, "CONFIG_FILE", DefaultConfigFile),
		ReloadCommand: getMapWithDefault(configMap, "RELOAD_COMMAND", DefaultReloadCommand),
		Domain:        strings.TrimSuffix(strings.ToLower(strings.TrimSpace(configMap["DOMAIN"])), "."),
		TTL:           DefaultTTL,
	}
	if strings.EqualFold(config.ReloadCommand, "none") {
		config.ReloadCommand = ""
	}

	if v := strings.TrimSpace(configMap["TTL"]); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("zone %s: invalid TTL value %q: %w", instanceName, v, err)
		}
		config.TTL = ttl
	}

	if strings.TrimSpace(configMap["SSH_HOST"]) != "" {
		sshConfig, err := sshutil.LoadConfigFromMap(configMap, "SSH_")
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", instanceName, err)
		}
		config.SSH = sshConfig
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("zone %s: %w", instanceName, err)
	}
	return config, nil
}

func getMapWithDefault(m map[string]string, key, defaultValue string) string {
	if v, ok := m[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}
