package config

import (
	"fmt"
	"os"
	"strings"
)

const envPrefixRoot = "DYNHOST_"

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or the file named by key+"_FILE" (Docker secrets pattern). The file wins
// when both are set; its content is trimmed.
func getEnvOrFile(key string) (string, error) {
	if path := os.Getenv(key + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%s_FILE: %w", key, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(key), nil
}

// parseBool parses a boolean string.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// normalizeInstanceName converts a zone name to environment variable format.
// Example: "home-zone" → "HOME_ZONE"
func normalizeInstanceName(name string) string {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, ".", "_")
	return normalized
}

// envPrefix creates the environment variable prefix for a zone.
// Example: "home-zone" → "DYNHOST_HOME_ZONE_"
func envPrefix(instanceName string) string {
	return envPrefixRoot + normalizeInstanceName(instanceName) + "_"
}

// splitList splits a comma-separated list, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
