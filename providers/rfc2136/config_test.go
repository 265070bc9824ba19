package rfc2136

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config without TSIG",
			config: Config{Server: "ns1.example.com:53", Zone: "example.com."},
		},
		{
			name: "valid config with TSIG",
			config: Config{
				Server:        "ns1.example.com",
				Zone:          "example.com.",
				TSIGKeyName:   "dynhost.",
				TSIGSecret:    "c2VjcmV0",
				TSIGAlgorithm: "hmac-sha256",
			},
		},
		{
			name:    "missing server",
			config:  Config{Zone: "example.com."},
			wantErr: true,
			errMsg:  "SERVER is required",
		},
		{
			name:    "missing zone",
			config:  Config{Server: "ns1.example.com:53"},
			wantErr: true,
			errMsg:  "ZONE is required",
		},
		{
			name:    "zone without trailing dot",
			config:  Config{Server: "ns1.example.com:53", Zone: "example.com"},
			wantErr: true,
			errMsg:  "ZONE must end with a dot",
		},
		{
			name:    "TSIG key name without dot",
			config:  Config{Server: "ns1", Zone: "example.com.", TSIGKeyName: "dynhost", TSIGSecret: "c2VjcmV0"},
			wantErr: true,
			errMsg:  "TSIG_KEY_NAME must end with a dot",
		},
		{
			name:    "TSIG secret missing",
			config:  Config{Server: "ns1", Zone: "example.com.", TSIGKeyName: "dynhost."},
			wantErr: true,
			errMsg:  "TSIG_SECRET is required",
		},
		{
			name:    "negative timeout",
			config:  Config{Server: "ns1", Zone: "example.com.", Timeout: -1},
			wantErr: true,
			errMsg:  "TIMEOUT must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestLoadConfigFromMap(t *testing.T) {
	cfg, err := LoadConfigFromMap("home", map[string]string{
		"SERVER":        "ns1.example.com",
		"ZONE":          "example.com",
		"TSIG_KEY_NAME": "dynhost.",
		"TSIG_SECRET":   "c2VjcmV0",
		"TIMEOUT":       "5",
		"USE_TCP":       "1",
	})
	if err != nil {
		t.Fatalf("LoadConfigFromMap() error = %v", err)
	}
	if cfg.Zone != "example.com." {
		t.Errorf("Zone = %q, want %q", cfg.Zone, "example.com.")
	}
	if cfg.Timeout != 5 || !cfg.UseTCP {
		t.Errorf("Timeout = %d, UseTCP = %v", cfg.Timeout, cfg.UseTCP)
	}

	upd := cfg.ToDNSUpdateConfig()
	if upd.Timeout != 5*time.Second || upd.TSIGKeyName != "dynhost." {
		t.Errorf("ToDNSUpdateConfig() = %+v", upd)
	}
}

func TestLoadConfigFromMap_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromMap("home", map[string]string{"SERVER": "ns1", "ZONE": "example.com."})
	if err != nil {
		t.Fatalf("LoadConfigFromMap() error = %v", err)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %d, want %d", cfg.Timeout, DefaultTimeout)
	}
	if cfg.UseTCP {
		t.Error("UseTCP should default to false")
	}
}

func TestLoadConfigFromMap_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing server": {"ZONE": "example.com."},
		"bad timeout":    {"SERVER": "ns1", "ZONE": "example.com.", "TIMEOUT": "ten"},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfigFromMap("home", m); err == nil {
				t.Error("LoadConfigFromMap() expected error")
			} else if !strings.Contains(err.Error(), "home") && name != "bad timeout" {
				t.Errorf("error %q should name the instance", err)
			}
		})
	}
}

func TestFactory(t *testing.T) {
	factory := Factory(testLogger())
	z, err := factory("home", map[string]string{"SERVER": "127.0.0.1", "ZONE": "example.com"})
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if z.Name() != "home" || z.Type() != "rfc2136" {
		t.Errorf("zone = %s/%s, want home/rfc2136", z.Name(), z.Type())
	}

	if _, err := factory("bad", map[string]string{}); err == nil {
		t.Error("Factory() with empty config expected error")
	}
}
