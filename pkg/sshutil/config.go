package sshutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default SSH client configuration values.
const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHTimeout is the default connection timeout.
	DefaultSSHTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the default SSH keepalive interval.
	DefaultKeepaliveInterval = 15 * time.Second
)

// Config holds SSH connection configuration.
type Config struct {
	// Host is the SSH server hostname or IP address (required).
	Host string

	// Port is the SSH server port (default: 22).
	Port int

	// User is the SSH username (required).
	User string

	// KeyFile is the path to a private key. One of KeyFile, KeyData or
	// Password must be set.
	KeyFile string

	// KeyData is the PEM-encoded private key itself.
	KeyData string

	// KeyPassphrase decrypts KeyFile or KeyData when they are encrypted.
	KeyPassphrase string

	// Password enables password authentication.
	Password string

	// Timeout is the SSH connection timeout (default: 30s).
	Timeout time.Duration

	// KeepaliveInterval is the interval for keepalive requests (default: 15s).
	KeepaliveInterval time.Duration

	// KnownHostsFile is the known_hosts file the server key is verified
	// against. Required unless InsecureIgnoreHostKey is set.
	KnownHostsFile string

	// InsecureIgnoreHostKey accepts any server key.
	InsecureIgnoreHostKey bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}
	if c.User == "" {
		errs = append(errs, "user is required")
	}
	if c.KeyFile == "" && c.KeyData == "" && c.Password == "" {
		errs = append(errs, "at least one authentication method required (key_file, key_data, or password)")
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}
	if c.KeepaliveInterval < 0 {
		errs = append(errs, "keepalive_interval must be non-negative")
	}
	if c.KnownHostsFile == "" && !c.InsecureIgnoreHostKey {
		errs = append(errs, "known_hosts is required unless insecure_ignore_host_key is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ssh config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Address returns the SSH server address in host:port format.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultSSHTimeout
}

// GetKeepaliveInterval returns the configured keepalive interval or the default.
func (c *Config) GetKeepaliveInterval() time.Duration {
	if c.KeepaliveInterval > 0 {
		return c.KeepaliveInterval
	}
	return DefaultKeepaliveInterval
}

// LoadConfigFromMap builds a Config from zone settings. Every key is looked
// up with prefix prepended, so a zone can keep its SSH settings under SSH_.
//
// Keys: HOST, PORT, USER, KEY_FILE, KEY_DATA, KEY_PASSPHRASE, PASSWORD,
// TIMEOUT and KEEPALIVE_INTERVAL (seconds), KNOWN_HOSTS,
// INSECURE_IGNORE_HOST_KEY.
func LoadConfigFromMap(configMap map[string]string, prefix string) (*Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(configMap[prefix+key])
	}

	config := &Config{
		Host:           get("HOST"),
		User:           get("USER"),
		KeyFile:        get("KEY_FILE"),
		KeyData:        configMap[prefix+"KEY_DATA"],
		KeyPassphrase:  configMap[prefix+"KEY_PASSPHRASE"],
		Password:       configMap[prefix+"PASSWORD"],
		KnownHostsFile: get("KNOWN_HOSTS"),
		Port:           DefaultSSHPort,
	}

	var err error
	if v := get("PORT"); v != "" {
		if config.Port, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid %sPORT value %q: %w", prefix, v, err)
		}
	}
	if config.Timeout, err = seconds(prefix+"TIMEOUT", get("TIMEOUT")); err != nil {
		return nil, err
	}
	if config.KeepaliveInterval, err = seconds(prefix+"KEEPALIVE_INTERVAL", get("KEEPALIVE_INTERVAL")); err != nil {
		return nil, err
	}
	if v := get("INSECURE_IGNORE_HOST_KEY"); v != "" {
		if config.InsecureIgnoreHostKey, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid %sINSECURE_IGNORE_HOST_KEY value %q: %w", prefix, v, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func seconds(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return time.Duration(n) * time.Second, nil
}
