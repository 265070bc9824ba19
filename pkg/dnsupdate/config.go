package dnsupdate

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Default configuration values.
const (
	// DefaultPort is the standard DNS port.
	DefaultPort = 53

	// DefaultTimeout is the default timeout for DNS operations.
	DefaultTimeout = 10 * time.Second

	// DefaultTSIGAlgorithm is used when TSIG is configured without an algorithm.
	DefaultTSIGAlgorithm = dns.HmacSHA256
)

// Config holds RFC 2136 client configuration.
type Config struct {
	// Server is the authoritative server, host or host:port (required).
	Server string

	// Zone is the zone apex to update, with trailing dot (required).
	Zone string

	// TSIGKeyName, TSIGSecret and TSIGAlgorithm configure request signing.
	// Either none or at least name and secret must be set.
	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string

	// Timeout bounds each exchange (default: 10s).
	Timeout time.Duration

	// UseTCP forces TCP transport instead of UDP.
	UseTCP bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	}

	if c.Zone == "" {
		errs = append(errs, "zone is required")
	} else if !strings.HasSuffix(c.Zone, ".") {
		errs = append(errs, "zone must end with a dot (e.g., 'example.com.')")
	}

	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		if c.TSIGKeyName == "" {
			errs = append(errs, "tsig_key_name is required when using TSIG authentication")
		}
		if c.TSIGSecret == "" {
			errs = append(errs, "tsig_secret is required when using TSIG authentication")
		}
		if !isValidAlgorithm(normalizeAlgorithm(c.TSIGAlgorithm)) {
			errs = append(errs, fmt.Sprintf("unsupported tsig_algorithm: %s (supported: hmac-md5, hmac-sha256, hmac-sha512)", c.TSIGAlgorithm))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("dnsupdate config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetServer returns the server address with a port.
func (c *Config) GetServer() string {
	if c.Server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(c.Server); err == nil {
		return c.Server
	}
	return net.JoinHostPort(strings.Trim(c.Server, "[]"), strconv.Itoa(DefaultPort))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// HasTSIG returns true if TSIG authentication is configured.
func (c *Config) HasTSIG() bool {
	return c.TSIGKeyName != "" && c.TSIGSecret != ""
}

// LoadConfigFromMap creates a Config from provider settings.
//
// Required keys: SERVER, ZONE
// Optional keys: TSIG_KEY_NAME, TSIG_SECRET, TSIG_ALGORITHM, TIMEOUT, USE_TCP
func LoadConfigFromMap(configMap map[string]string) (*Config, error) {
	config := &Config{
		Server:        configMap["SERVER"],
		Zone:          configMap["ZONE"],
		TSIGKeyName:   configMap["TSIG_KEY_NAME"],
		TSIGSecret:    configMap["TSIG_SECRET"],
		TSIGAlgorithm: configMap["TSIG_ALGORITHM"],
	}

	if config.Zone != "" {
		config.Zone = dns.Fqdn(config.Zone)
	}

	if timeoutStr := configMap["TIMEOUT"]; timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEOUT value %q: %w", timeoutStr, err)
		}
		config.Timeout = time.Duration(timeout) * time.Second
	}

	if tcpStr := configMap["USE_TCP"]; tcpStr != "" {
		config.UseTCP = strings.EqualFold(tcpStr, "true") || tcpStr == "1"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
