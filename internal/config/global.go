package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default values for global configuration.
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultListenAddr    = ":8053"
	DefaultHealthPort    = 8080
	DefaultTTL           = 300
	DefaultPortalBaseURL = "https://members.sonic.net/"
	DefaultPortalTimeout = time.Second
	DefaultAuditStream   = "dynhost:updates"
)

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		ListenAddr: DefaultListenAddr,
		HealthPort: DefaultHealthPort,
		TTL:        DefaultTTL,
		Portal: PortalConfig{
			BaseURL: DefaultPortalBaseURL,
			Timeout: DefaultPortalTimeout,
		},
		Audit: AuditConfig{
			Stream: DefaultAuditStream,
		},
	}
}

// applyFile overlays the file settings on cfg. portalSet reports whether
// the file said explicitly whether the portal is enabled.
func applyFile(cfg *Config, fc *FileConfig) (portalSet bool, errs []string) {
	if l := fc.Logging; l != nil {
		setString(&cfg.LogLevel, strings.ToLower(l.Level))
		setString(&cfg.LogFormat, strings.ToLower(l.Format))
	}

	if s := fc.Server; s != nil {
		setString(&cfg.ListenAddr, s.ListenAddr)
		if s.HealthPort != 0 {
			cfg.HealthPort = s.HealthPort
		}
		setString(&cfg.SecretToken, s.SecretToken)
		if len(s.AllowedHosts) > 0 {
			cfg.AllowedHosts = s.AllowedHosts
		}
		setString(&cfg.DefaultZone, s.DefaultZone)
		if s.TrustProxy != nil {
			cfg.TrustProxy = *s.TrustProxy
		}
	}

	if u := fc.Update; u != nil {
		if u.TTL != 0 {
			cfg.TTL = u.TTL
		}
		if u.DryRun != nil {
			cfg.DryRun = *u.DryRun
		}
	}

	if p := fc.Portal; p != nil {
		if p.Enabled != nil {
			cfg.Portal.Enabled = *p.Enabled
			portalSet = true
		}
		setString(&cfg.Portal.BaseURL, p.BaseURL)
		setString(&cfg.Portal.User, p.User)
		setString(&cfg.Portal.Password, p.Password)
		setString(&cfg.Portal.TOTPSecret, p.TOTPSecret)
		if p.Timeout != "" {
			d, err := time.ParseDuration(p.Timeout)
			if err != nil {
				errs = append(errs, fmt.Sprintf("portal.timeout: invalid duration %q", p.Timeout))
			} else {
				cfg.Portal.Timeout = d
			}
		}
	}

	if a := fc.Audit; a != nil {
		setString(&cfg.Audit.RedisAddr, a.RedisAddr)
		if a.RedisDB != 0 {
			cfg.Audit.RedisDB = a.RedisDB
		}
		setString(&cfg.Audit.Stream, a.Stream)
	}

	for i, fz := range fc.Zones {
		if fz.Name == "" {
			errs = append(errs, fmt.Sprintf("zones[%d]: name is required", i))
			continue
		}
		z := &ZoneConfig{
			Name:     fz.Name,
			Type:     strings.ToLower(fz.Type),
			Settings: make(map[string]string, len(fz.Config)),
		}
		for k, v := range fz.Config {
			z.Settings[strings.ToUpper(k)] = v
		}
		cfg.Zones = append(cfg.Zones, z)
	}

	return portalSet, errs
}

// applyEnv overlays DYNHOST_* global variables on cfg.
func applyEnv(cfg *Config) (portalSet bool, errs []string) {
	env := func(key string) string { return getEnv(envPrefixRoot + key) }

	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	setString(&cfg.ListenAddr, env("LISTEN_ADDR"))
	if v := env("HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sHEALTH_PORT: invalid integer %q", envPrefixRoot, v))
		} else {
			cfg.HealthPort = port
		}
	}
	if v := env("ALLOWED_HOSTS"); v != "" {
		cfg.AllowedHosts = splitList(v)
	}
	setString(&cfg.DefaultZone, env("DEFAULT_ZONE"))
	errs = appendBool(errs, "TRUST_PROXY", &cfg.TrustProxy)
	if v := env("TTL"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sTTL: invalid integer %q", envPrefixRoot, v))
		} else {
			cfg.TTL = ttl
		}
	}
	errs = appendBool(errs, "DRY_RUN", &cfg.DryRun)

	if env("PORTAL_ENABLED") != "" {
		portalSet = true
	}
	errs = appendBool(errs, "PORTAL_ENABLED", &cfg.Portal.Enabled)
	setString(&cfg.Portal.BaseURL, env("PORTAL_BASE_URL"))
	setString(&cfg.Portal.User, env("PORTAL_USER"))
	if v := env("PORTAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sPORTAL_TIMEOUT: invalid duration %q", envPrefixRoot, v))
		} else {
			cfg.Portal.Timeout = d
		}
	}

	setString(&cfg.Audit.RedisAddr, env("AUDIT_REDIS_ADDR"))
	if v := env("AUDIT_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sAUDIT_REDIS_DB: invalid integer %q", envPrefixRoot, v))
		} else {
			cfg.Audit.RedisDB = db
		}
	}
	setString(&cfg.Audit.Stream, env("AUDIT_STREAM"))

	secrets := []struct {
		key string
		dst *string
	}{
		{"SECRET_TOKEN", &cfg.SecretToken},
		{"PORTAL_PASSWORD", &cfg.Portal.Password},
		{"PORTAL_TOTP_SECRET", &cfg.Portal.TOTPSecret},
	}
	for _, s := range secrets {
		v, err := getEnvOrFile(envPrefixRoot + s.key)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		setString(s.dst, v)
	}

	return portalSet, errs
}

func appendBool(errs []string, key string, dst *bool) []string {
	v := getEnv(envPrefixRoot + key)
	if v == "" {
		return errs
	}
	b, ok := parseBool(v)
	if !ok {
		return append(errs, fmt.Sprintf("%s%s: invalid boolean %q", envPrefixRoot, key, v))
	}
	*dst = b
	return errs
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
