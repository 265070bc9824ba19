// Package httputil provides the HTTP clients shared by the zone providers
// and the member portal session.
package httputil

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default HTTP client configuration values.
const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "dynhost/1.0"
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// TLSSkipVerify controls whether to skip TLS certificate verification.
	// WARNING: This should only be used for testing or when connecting to
	// servers with self-signed certificates. It is insecure for production.
	TLSSkipVerify bool

	// UserAgent is the User-Agent header to set on requests.
	// Defaults to "dynhost/1.0" if not specified.
	UserAgent string

	// Headers are added to every request that does not already set them.
	Headers http.Header

	// NoRedirects returns 3xx responses to the caller instead of following them.
	NoRedirects bool

	// Logger enables debug logging for HTTP requests.
	// If nil, no debug logging is performed.
	Logger *slog.Logger
}

// headerTransport wraps an http.RoundTripper to add default headers
// and optionally log requests at debug level.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 || (req.Header.Get("User-Agent") == "" && t.userAgent != "") {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
	}

	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for key, values := range t.headers {
		if req.Header.Get(key) == "" {
			req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
		)
	}

	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP response",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Int("status", resp.StatusCode),
		)
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration.
// If cfg is nil, defaults are used (30s timeout, TLS verification enabled).
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	baseTransport := http.DefaultTransport
	if cfg.TLSSkipVerify {
		baseTransport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // Intentional: user explicitly requested skip
			},
		}
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:      baseTransport,
			userAgent: userAgent,
			headers:   cfg.Headers.Clone(),
			logger:    cfg.Logger,
		},
	}

	if cfg.NoRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client
}

// DefaultBrowserTimeout bounds each portal request.
const DefaultBrowserTimeout = time.Second

// BrowserHeaders returns the headers of a same-origin form navigation from
// origin, which the members portal requires before it accepts a POST.
func BrowserHeaders(origin string) http.Header {
	origin = strings.TrimSuffix(origin, "/")
	return http.Header{
		"Origin":                    {origin},
		"Accept":                    {"text/html,application/xhtml+xml,application/xml"},
		"Accept-Language":           {"en-US,en;q=0.5"},
		"Accept-Encoding":           {"gzip, deflate, br"},
		"Referer":                   {origin + "/"},
		"Upgrade-Insecure-Requests": {"1"},
		"Sec-Fetch-Dest":            {"document"},
		"Sec-Fetch-Mode":            {"navigate"},
		"Sec-Fetch-Site":            {"same-origin"},
		"Sec-Fetch-User":            {"?1"},
	}
}

// NewBrowserClient returns a client for scripted portal sessions: browser
// headers for origin, a short timeout, no redirect following and no cookie
// jar. Callers thread cookies themselves.
func NewBrowserClient(origin string, timeout time.Duration, logger *slog.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	return NewClient(&ClientConfig{
		Timeout:     timeout,
		Headers:     BrowserHeaders(origin),
		NoRedirects: true,
		Logger:      logger,
	})
}

// DefaultClient returns a new HTTP client with default settings.
// Equivalent to NewClient(nil).
func DefaultClient() *http.Client {
	return NewClient(nil)
}
