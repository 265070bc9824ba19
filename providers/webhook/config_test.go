package webhook

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromMap(t *testing.T) {
	cfg, err := LoadConfigFromMap("hook", map[string]string{
		"URL":             "https://dns.example.com/hook/",
		"TIMEOUT":         "5s",
		"AUTH_HEADER":     "X-API-Key",
		"AUTH_TOKEN":      "secret",
		"RETRIES":         "0",
		"RETRY_DELAY":     "250ms",
		"TLS_SKIP_VERIFY": "true",
	})
	if err != nil {
		t.Fatalf("LoadConfigFromMap() error = %v", err)
	}
	if cfg.Timeout != 5*time.Second || cfg.Retries != 0 || cfg.RetryDelay != 250*time.Millisecond || !cfg.TLSSkipVerify {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFromMap_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromMap("hook", map[string]string{"URL": "http://localhost:9000"})
	if err != nil {
		t.Fatalf("LoadConfigFromMap() error = %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Retries != DefaultRetries || cfg.RetryDelay != DefaultRetryDelay {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFromMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]string
		want string
	}{
		{"missing url", map[string]string{}, "URL is required"},
		{"bad scheme", map[string]string{"URL": "ftp://x"}, "must start with http"},
		{"header without token", map[string]string{"URL": "http://x", "AUTH_HEADER": "X-Key"}, "AUTH_TOKEN is required"},
		{"bad timeout", map[string]string{"URL": "http://x", "TIMEOUT": "soon"}, "invalid TIMEOUT"},
		{"bad retries", map[string]string{"URL": "http://x", "RETRIES": "many"}, "invalid RETRIES"},
		{"negative retries", map[string]string{"URL": "http://x", "RETRIES": "-1"}, "RETRIES must be non-negative"},
		{"bad tls flag", map[string]string{"URL": "http://x", "TLS_SKIP_VERIFY": "sure"}, "invalid TLS_SKIP_VERIFY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromMap("hook", tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
