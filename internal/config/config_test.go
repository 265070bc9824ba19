package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every DYNHOST_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, envPrefixRoot) {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("logging = %s/%s, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ListenAddr != ":8053" {
		t.Errorf("ListenAddr = %q, want :8053", cfg.ListenAddr)
	}
	if cfg.HealthPort != 8080 {
		t.Errorf("HealthPort = %d, want 8080", cfg.HealthPort)
	}
	if cfg.TTL != 300 {
		t.Errorf("TTL = %d, want 300", cfg.TTL)
	}
	if cfg.Portal.Enabled {
		t.Error("portal should be disabled without credentials")
	}
	if cfg.Portal.BaseURL != DefaultPortalBaseURL || cfg.Portal.Timeout != time.Second {
		t.Errorf("portal = %+v", cfg.Portal)
	}
	if cfg.Audit.Enabled() || cfg.Audit.Stream != "dynhost:updates" {
		t.Errorf("audit = %+v", cfg.Audit)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("DYNHOST_LOG_LEVEL", "DEBUG")
	t.Setenv("DYNHOST_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("DYNHOST_SECRET_TOKEN", "s3cret")
	t.Setenv("DYNHOST_ALLOWED_HOSTS", "home.example.com, vpn.example.com")
	t.Setenv("DYNHOST_DEFAULT_ZONE", "home")
	t.Setenv("DYNHOST_TRUST_PROXY", "yes")
	t.Setenv("DYNHOST_TTL", "60")
	t.Setenv("DYNHOST_DRY_RUN", "on")
	t.Setenv("DYNHOST_ZONES", "home")
	t.Setenv("DYNHOST_HOME_TYPE", "RFC2136")
	t.Setenv("DYNHOST_HOME_SERVER", "ns1.example.com:53")
	t.Setenv("DYNHOST_HOME_ZONE", "example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.SecretToken != "s3cret" {
		t.Errorf("server = %q token %q", cfg.ListenAddr, cfg.SecretToken)
	}
	if got := strings.Join(cfg.AllowedHosts, ","); got != "home.example.com,vpn.example.com" {
		t.Errorf("AllowedHosts = %q", got)
	}
	if !cfg.TrustProxy || !cfg.DryRun || cfg.TTL != 60 {
		t.Errorf("trust=%t dry=%t ttl=%d", cfg.TrustProxy, cfg.DryRun, cfg.TTL)
	}

	z := cfg.Zone("home")
	if z == nil {
		t.Fatal("zone home not loaded")
	}
	if z.Type != "rfc2136" {
		t.Errorf("Type = %q, want rfc2136", z.Type)
	}
	if z.Settings["SERVER"] != "ns1.example.com:53" || z.Settings["ZONE"] != "example.com" {
		t.Errorf("Settings = %v", z.Settings)
	}
	if _, ok := z.Settings["TYPE"]; ok {
		t.Error("TYPE should not be a provider setting")
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer() error = %v", err)
	}
}

func TestLoad_SecretFiles(t *testing.T) {
	clearEnv(t)
	t.Setenv("DYNHOST_SECRET_TOKEN", "from-env")
	t.Setenv("DYNHOST_SECRET_TOKEN_FILE", writeFile(t, "token", "from-file\n"))
	t.Setenv("DYNHOST_PORTAL_USER", "alice")
	t.Setenv("DYNHOST_PORTAL_PASSWORD_FILE", writeFile(t, "password", "hunter2"))
	t.Setenv("DYNHOST_PORTAL_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("DYNHOST_ZONES", "cf")
	t.Setenv("DYNHOST_CF_TYPE", "cloudflare")
	t.Setenv("DYNHOST_CF_TOKEN_FILE", writeFile(t, "cf", " api-token \n"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SecretToken != "from-file" {
		t.Errorf("SecretToken = %q, want from-file", cfg.SecretToken)
	}
	if !cfg.Portal.Enabled {
		t.Error("portal credentials should enable the portal")
	}
	if cfg.Portal.Password != "hunter2" {
		t.Errorf("Password = %q", cfg.Portal.Password)
	}
	if got := cfg.Zone("cf").Settings["TOKEN"]; got != "api-token" {
		t.Errorf("TOKEN = %q, want api-token", got)
	}
}

func TestLoad_MissingSecretFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DYNHOST_SECRET_TOKEN_FILE", filepath.Join(t.TempDir(), "absent"))

	_, err := Load("")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Error(), "DYNHOST_SECRET_TOKEN_FILE") {
		t.Errorf("error %q does not name the variable", verr.Error())
	}
}

func TestLoad_PortalExplicitlyDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("DYNHOST_PORTAL_ENABLED", "false")
	t.Setenv("DYNHOST_PORTAL_USER", "alice")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Portal.Enabled {
		t.Error("portal should stay disabled")
	}
}

func TestLoad_CollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("DYNHOST_LOG_FORMAT", "xml")
	t.Setenv("DYNHOST_TTL", "soon")
	t.Setenv("DYNHOST_DRY_RUN", "maybe")
	t.Setenv("DYNHOST_PORTAL_ENABLED", "true")
	t.Setenv("DYNHOST_DEFAULT_ZONE", "nowhere")
	t.Setenv("DYNHOST_ZONES", "portal,bare")

	_, err := Load("")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %v, want *ValidationError", err)
	}

	for _, want := range []string{
		"DYNHOST_TTL",
		"DYNHOST_DRY_RUN",
		"log format",
		"portal user",
		"portal password",
		"portal TOTP secret",
		`"portal" is reserved`,
		"DYNHOST_BARE_TYPE",
		`default zone "nowhere"`,
	} {
		if !strings.Contains(verr.Error(), want) {
			t.Errorf("error missing %q:\n%s", want, verr.Error())
		}
	}
}

func TestValidateServer(t *testing.T) {
	cfg := defaults()

	err := cfg.ValidateServer()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateServer() error = %v, want *ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(verr.Errors), verr.Errors)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Accessors(t *testing.T) {
	cfg := &Config{
		AllowedHosts: []string{"a.example.com"},
		Zones: []*ZoneConfig{
			{Name: "home", Type: "memory"},
			{Name: "cloud", Type: "cloudflare"},
		},
	}

	if got := strings.Join(cfg.ZoneNames(), ","); got != "home,cloud" {
		t.Errorf("ZoneNames() = %q", got)
	}
	if cfg.Zone("cloud") == nil || cfg.Zone("other") != nil {
		t.Error("Zone() lookup mismatch")
	}
	if cfg.AllowsAnyHost() {
		t.Error("AllowsAnyHost() = true without *")
	}
	cfg.AllowedHosts = append(cfg.AllowedHosts, "*")
	if !cfg.AllowsAnyHost() {
		t.Error("AllowsAnyHost() = false with *")
	}
	if s := cfg.String(); strings.Contains(s, "secret") || !strings.Contains(s, "zones=[home cloud]") {
		t.Errorf("String() = %q", s)
	}
}

func TestValidationError(t *testing.T) {
	one := &ValidationError{Errors: []string{"bad"}}
	if one.Error() != "configuration error: bad" {
		t.Errorf("Error() = %q", one.Error())
	}
	two := &ValidationError{Errors: []string{"a", "b"}}
	if two.Error() != "configuration errors:\n  - a\n  - b" {
		t.Errorf("Error() = %q", two.Error())
	}
}
