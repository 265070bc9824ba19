package rfc2136

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/dynhost/pkg/dnsupdate"
)

// DefaultTimeout is the default timeout for DNS operations in seconds.
const DefaultTimeout = 10

// Config holds RFC 2136 zone configuration.
type Config struct {
	// Server is the authoritative server, host or host:port (required).
	Server string

	// Zone is the zone apex, e.g. "example.com." (required).
	Zone string

	// TSIGKeyName is the TSIG key name, e.g. "dynhost.".
	TSIGKeyName string

	// TSIGSecret is the base64-encoded TSIG shared secret.
	TSIGSecret string

	// TSIGAlgorithm is one of hmac-md5, hmac-sha256 (default), hmac-sha512.
	TSIGAlgorithm string

	// Timeout for DNS operations in seconds (default: 10).
	Timeout int

	// UseTCP forces TCP transport instead of UDP.
	UseTCP bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "SERVER is required")
	}

	if c.Zone == "" {
		errs = append(errs, "ZONE is required")
	} else if !strings.HasSuffix(c.Zone, ".") {
		errs = append(errs, "ZONE must end with a dot (e.g., 'example.com.')")
	}

	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		if c.TSIGKeyName == "" {
			errs = append(errs, "TSIG_KEY_NAME is required when using TSIG authentication")
		} else if !strings.HasSuffix(c.TSIGKeyName, ".") {
			errs = append(errs, "TSIG_KEY_NAME must end with a dot (e.g., 'dynhost.')")
		}

		if c.TSIGSecret == "" {
			errs = append(errs, "TSIG_SECRET is required when using TSIG authentication")
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, "TIMEOUT must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("rfc2136 config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ToDNSUpdateConfig converts this config to dnsupdate.Config.
func (c *Config) ToDNSUpdateConfig() *dnsupdate.Config {
	return &dnsupdate.Config{
		Server:        c.Server,
		Zone:          c.Zone,
		TSIGKeyName:   c.TSIGKeyName,
		TSIGSecret:    c.TSIGSecret,
		TSIGAlgorithm: c.TSIGAlgorithm,
		Timeout:       time.Duration(c.Timeout) * time.Second,
		UseTCP:        c.UseTCP,
	}
}

// LoadConfigFromMap creates a Config from the zone's settings.
//
// Required keys: SERVER, ZONE
// Optional keys: TSIG_KEY_NAME, TSIG_SECRET, TSIG_ALGORITHM, TIMEOUT, USE_TCP
func LoadConfigFromMap(instanceName string, configMap map[string]string) (*Config, error) {
	config := &Config{
		Server:        configMap["SERVER"],
		Zone:          configMap["ZONE"],
		TSIGKeyName:   configMap["TSIG_KEY_NAME"],
		TSIGSecret:    configMap["TSIG_SECRET"],
		TSIGAlgorithm: configMap["TSIG_ALGORITHM"],
		Timeout:       DefaultTimeout,
	}

	if config.Zone != "" {
		config.Zone = dns.Fqdn(config.Zone)
	}

	if timeoutStr, ok := configMap["TIMEOUT"]; ok && timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", timeoutStr, err)
		}
		config.Timeout = timeout
	}

	if tcpStr, ok := configMap["USE_TCP"]; ok && tcpStr != "" {
		config.UseTCP = strings.EqualFold(tcpStr, "true") || tcpStr == "1"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}

	return config, nil
}
