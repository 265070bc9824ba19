package config

import (
	"strings"
	"testing"
	"time"
)

const yamlConfig = `
logging:
  level: debug
  format: text
server:
  listen_addr: ":9053"
  secret_token: ${TEST_DYNHOST_TOKEN}
  allowed_hosts: ["home.example.com"]
  default_zone: home
update:
  ttl: 120
  dry_run: true
portal:
  enabled: true
  user: alice
  password: ${TEST_DYNHOST_PASSWORD:-fallback}
  totp_secret: JBSWY3DPEHPK3PXP
  timeout: 2s
audit:
  redis_addr: localhost:6379
  redis_db: 2
zones:
  - name: home
    type: rfc2136
    config:
      server: ns1.example.com:53
      zone: example.com
`

const tomlConfig = `
[logging]
level = "warn"

[server]
secret_token = "t"
allowed_hosts = ["*"]

[update]
ttl = 600

[[zones]]
name = "cloud"
type = "cloudflare"

[zones.config]
token = "abc"
zone = "example.org"
`

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DYNHOST_TOKEN", "tok")
	t.Setenv("TEST_DYNHOST_PASSWORD", "")

	cfg, err := Load(writeFile(t, "dynhost.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ListenAddr != ":9053" || cfg.SecretToken != "tok" {
		t.Errorf("server = %q token %q", cfg.ListenAddr, cfg.SecretToken)
	}
	if cfg.TTL != 120 || !cfg.DryRun {
		t.Errorf("update = ttl %d dry %t", cfg.TTL, cfg.DryRun)
	}
	if cfg.Portal.Password != "fallback" || cfg.Portal.Timeout != 2*time.Second {
		t.Errorf("portal = %+v", cfg.Portal)
	}
	if cfg.Audit.RedisAddr != "localhost:6379" || cfg.Audit.RedisDB != 2 || cfg.Audit.Stream != DefaultAuditStream {
		t.Errorf("audit = %+v", cfg.Audit)
	}

	z := cfg.Zone("home")
	if z == nil || z.Type != "rfc2136" || z.Settings["SERVER"] != "ns1.example.com:53" {
		t.Fatalf("zone = %+v", z)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeFile(t, "dynhost.toml", tomlConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" || cfg.TTL != 600 || !cfg.AllowsAnyHost() {
		t.Errorf("cfg = %s", cfg)
	}
	z := cfg.Zone("cloud")
	if z == nil || z.Settings["TOKEN"] != "abc" || z.Settings["ZONE"] != "example.org" {
		t.Fatalf("zone = %+v", z)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "dynhost.toml", tomlConfig)
	t.Setenv("DYNHOST_CONFIG", path)
	t.Setenv("DYNHOST_TTL", "30")
	t.Setenv("DYNHOST_ZONES", "cloud")
	t.Setenv("DYNHOST_CLOUD_TOKEN", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TTL != 30 {
		t.Errorf("TTL = %d, want 30", cfg.TTL)
	}
	if len(cfg.Zones) != 1 {
		t.Fatalf("got %d zones, want 1", len(cfg.Zones))
	}
	z := cfg.Zones[0]
	if z.Type != "cloudflare" || z.Settings["TOKEN"] != "from-env" || z.Settings["ZONE"] != "example.org" {
		t.Errorf("zone = %+v", z)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad yaml", "c.yaml", "server: [", "parsing YAML"},
		{"bad toml", "c.toml", "server = [", "parsing TOML"},
		{"unknown extension", "c.json", "{}", "unsupported config file extension"},
		{"bad duration", "c.yaml", "portal:\n  timeout: fast\n", "portal.timeout"},
		{"nameless zone", "c.yaml", "zones:\n  - type: memory\n", "zones[0]: name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("TEST_DYNHOST_SET", "value")
	t.Setenv("TEST_DYNHOST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"${TEST_DYNHOST_SET}", "value"},
		{"pre-${TEST_DYNHOST_SET}-post", "pre-value-post"},
		{"${TEST_DYNHOST_EMPTY:-default}", "default"},
		{"${TEST_DYNHOST_UNSET}", ""},
	}
	for _, tt := range tests {
		if got := InterpolateEnvVars(tt.in); got != tt.want {
			t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
