package clouddns

import (
	"fmt"
	"strings"
)

// Config holds Google Cloud DNS configuration.
type Config struct {
	// Project is the Google Cloud project ID (required).
	Project string

	// ManagedZone is the managed zone name, not its DNS name (required).
	ManagedZone string

	// CredentialsFile is a service account key. Application default
	// credentials are used when empty.
	CredentialsFile string

	// Endpoint overrides the API base URL (emulators and tests).
	Endpoint string
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.Project == "" {
		errs = append(errs, "PROJECT is required")
	}
	if c.ManagedZone == "" {
		errs = append(errs, "MANAGED_ZONE is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("clouddns config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfigFromMap creates a Config from the zone's settings.
//
// Required keys: PROJECT, MANAGED_ZONE
// Optional keys: CREDENTIALS_FILE, ENDPOINT
func LoadConfigFromMap(instanceName string, configMap map[string]string) (*Config, error) {
	config := &Config{
		Project:         configMap["PROJECT"],
		ManagedZone:     configMap["MANAGED_ZONE"],
		CredentialsFile: configMap["CREDENTIALS_FILE"],
		Endpoint:        configMap["ENDPOINT"],
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", instanceName, err)
	}
	return config, nil
}
