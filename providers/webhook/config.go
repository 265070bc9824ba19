package webhook

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP client timeout for webhook requests.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts for a failed ping.
// Lookups and change requests are sent once.
const DefaultRetries = 3

// DefaultRetryDelay is the base delay between retry attempts.
const DefaultRetryDelay = time.Second

// Config holds webhook-specific configuration.
type Config struct {
	URL           string        // Base URL for the webhook endpoint (required)
	Timeout       time.Duration // HTTP client timeout (default: 30s)
	AuthHeader    string        // Custom authentication header name (optional)
	AuthToken     string        // Authentication token value (optional)
	Retries       int           // Ping retry attempts (default: 3)
	RetryDelay    time.Duration // Base delay between retries (default: 1s)
	TLSSkipVerify bool
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.URL == "" {
		errs = append(errs, "URL is required")
	} else if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		errs = append(errs, "URL must start with http:// or https://")
	}

	if c.AuthHeader != "" && c.AuthToken == "" {
		errs = append(errs, "AUTH_TOKEN is required when AUTH_HEADER is set")
	}
	if c.Timeout < 0 {
		errs = append(errs, "TIMEOUT must be non-negative")
	}
	if c.Retries < 0 {
		errs = append(errs, "RETRIES must be non-negative")
	}
	if c.RetryDelay < 0 {
		errs = append(errs, "RETRY_DELAY must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("webhook config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfigFromMap creates a Config from zone settings.
//
// Keys: URL (required), TIMEOUT, AUTH_HEADER (e.g. "X-API-Key"),
// AUTH_TOKEN, RETRIES, RETRY_DELAY, TLS_SKIP_VERIFY.
func LoadConfigFromMap(instanceName string, configMap map[string]string) (*Config, error) {
	config := &Config{
		URL:        strings.TrimSpace(configMap["URL"]),
		Timeout:    DefaultTimeout,
		AuthHeader: strings.TrimSpace(configMap["AUTH_HEADER"]),
		AuthToken:  strings.TrimSpace(configMap["AUTH_TOKEN"]),
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}

	if v := strings.TrimSpace(configMap["TIMEOUT"]); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("zone %s: invalid TIMEOUT value %q: %w", instanceName, v, err)
		}
		config.Timeout = d
	}
	if v := strings.TrimSpace(configMap["RETRIES"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("zone %s: invalid RETRIES value %q: %w", instanceName, v, err)
		}
		config.Retries = n
	}
	if v := strings.TrimSpace(configMap["RETRY_DELAY"]); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("zone %s: invalid RETRY_DELAY value %q: %w", instanceName, v, err)
		}
		config.RetryDelay = d
	}
	if v := strings.TrimSpace(configMap["TLS_SKIP_VERIFY"]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("zone %s: invalid TLS_SKIP_VERIFY value %q: %w", instanceName, v, err)
		}
		config.TLSSkipVerify = b
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("zone %s: %w", instanceName, err)
	}
	return config, nil
}
