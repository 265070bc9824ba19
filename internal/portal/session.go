// Package portal drives the members portal session that moves the IPv6
// tunnel endpoint to a new IPv4 address: a password login, a TOTP second
// factor and the update form, each a plain form POST threaded through the
// cookies the previous step returned.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"gitlab.bluewillows.net/root/dynhost/pkg/httputil"
)

// DefaultBaseURL is the members portal.
const DefaultBaseURL = "https://members.sonic.net/"

const updatePath = "/labs/ipv6tunnel/"

// Cookies collected along the session, in header order.
const (
	sessionCookie = "PHPSESSID"
	visitorCookie = "__vua"
	mfaCookie     = "mt2FAToken"
)

// ErrInvalidEndpoint is returned for an endpoint that is not an IPv4 address.
var ErrInvalidEndpoint = errors.New("endpoint must be an IPv4 address")

// Credentials authenticate the portal session.
type Credentials struct {
	User       string
	Password   string
	TOTPSecret string // base32
}

// Config holds the portal settings.
type Config struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration // per request, defaults to httputil.DefaultBrowserTimeout
}

// CodeGenerator returns the one-time code for secret at t.
type CodeGenerator func(secret string, t time.Time) (string, error)

// Clock returns the current time.
type Clock func() time.Time

// Session runs portal sessions. It holds no cookie state, so one Session
// can run any number of PropagateEndpoint calls concurrently.
type Session struct {
	base   *url.URL
	creds  Credentials
	client *http.Client
	logger *slog.Logger
	clock  Clock
	codes  CodeGenerator
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient replaces the browser client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		s.client = client
	}
}

// WithClock sets the time source for one-time codes.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithCodeGenerator replaces TOTP code generation.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Session) {
		s.codes = gen
	}
}

// New creates a Session.
func New(cfg Config, opts ...Option) (*Session, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid portal base URL %q", raw)
	}
	if cfg.Credentials.User == "" || cfg.Credentials.Password == "" {
		return nil, errors.New("portal user and password are required")
	}
	if cfg.Credentials.TOTPSecret == "" {
		return nil, errors.New("portal TOTP secret is required")
	}

	s := &Session{
		base:   base,
		creds:  cfg.Credentials,
		logger: slog.Default(),
		clock:  time.Now,
		codes:  totp.GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.codes(s.creds.TOTPSecret, s.clock()); err != nil {
		return nil, fmt.Errorf("portal TOTP secret: %w", err)
	}
	if s.client == nil {
		origin := base.Scheme + "://" + base.Host
		s.client = httputil.NewBrowserClient(origin, cfg.Timeout, s.logger)
	}
	return s, nil
}

// PropagateEndpoint logs in and points the IPv6 tunnel at ipv4. It never
// retries and never undoes a step; the outcome names the step it stopped in.
func (s *Session) PropagateEndpoint(ctx context.Context, ipv4 netip.Addr) Outcome {
	if !ipv4.Unmap().Is4() {
		return Outcome{Step: StepLogin, Err: fmt.Errorf("%w: %s", ErrInvalidEndpoint, ipv4)}
	}
	ipv4 = ipv4.Unmap()

	s.logger.InfoContext(ctx, "portal session started", slog.String("endpoint", ipv4.String()))

	step, jar := StepLogin, Jar{}
	for step != StepDone {
		next, extended, err := s.step(ctx, step, jar, ipv4)
		if err != nil {
			return Outcome{Step: step, Err: err}
		}
		step, jar = next, extended
	}

	s.logger.InfoContext(ctx, "portal session completed", slog.String("endpoint", ipv4.String()))
	return Outcome{Step: StepDone}
}

// step runs one transition and returns the next step with the extended jar.
func (s *Session) step(ctx context.Context, step Step, jar Jar, ipv4 netip.Addr) (Step, Jar, error) {
	s.logger.DebugContext(ctx, "portal step started", slog.String("step", step.String()))

	var (
		next Step
		out  Jar
		err  error
	)
	switch step {
	case StepLogin:
		next, out, err = s.login(ctx, jar)
	case StepSecondFactor:
		next, out, err = s.secondFactor(ctx, jar)
	case StepApplyUpdate:
		next, out, err = s.applyUpdate(ctx, jar, ipv4)
	default:
		return step, jar, fmt.Errorf("portal: no transition from %s", step)
	}

	if err != nil {
		s.logger.WarnContext(ctx, "portal step failed",
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
		return step, jar, err
	}
	s.logger.InfoContext(ctx, "portal step succeeded",
		slog.String("step", step.String()),
		slog.Int("cookies", out.Len()),
	)
	return next, out, nil
}

func (s *Session) login(ctx context.Context, jar Jar) (Step, Jar, error) {
	body := encodeForm("login", "login", "user", s.creds.User, "pw", s.creds.Password)

	status, header, err := s.post(ctx, "/", body, jar)
	if err != nil {
		return StepLogin, jar, &StepError{Step: StepLogin, Kind: UnexpectedResponse, Err: err}
	}
	if status != http.StatusFound {
		return StepLogin, jar, &StepError{Step: StepLogin, Kind: UnexpectedResponse, Status: status,
			Err: fmt.Errorf("expected 302, got %d", status)}
	}

	setCookies := header.Values("Set-Cookie")
	session, ok := cookieFragment(setCookies, sessionCookie)
	if !ok {
		return StepLogin, jar, &StepError{Step: StepLogin, Kind: SessionCookieMissing, Status: status,
			Err: fmt.Errorf("no %s cookie", sessionCookie)}
	}
	visitor, ok := cookieFragment(setCookies, visitorCookie)
	if !ok {
		return StepLogin, jar, &StepError{Step: StepLogin, Kind: SessionCookieMissing, Status: status,
			Err: fmt.Errorf("no %s cookie", visitorCookie)}
	}
	return StepSecondFactor, jar.With(session, visitor), nil
}

func (s *Session) secondFactor(ctx context.Context, jar Jar) (Step, Jar, error) {
	code, err := s.codes(s.creds.TOTPSecret, s.clock())
	if err != nil {
		return StepSecondFactor, jar, &StepError{Step: StepSecondFactor, Kind: UnexpectedResponse,
			Err: fmt.Errorf("generating code: %w", err)}
	}
	body := encodeForm("2sv_auth", code, "backup_code", "", "2sv_remember", "1")

	status, header, err := s.post(ctx, "/", body, jar)
	if err != nil {
		return StepSecondFactor, jar, &StepError{Step: StepSecondFactor, Kind: UnexpectedResponse, Err: err}
	}
	if status != http.StatusFound {
		return StepSecondFactor, jar, &StepError{Step: StepSecondFactor, Kind: UnexpectedResponse, Status: status,
			Err: fmt.Errorf("expected 302, got %d", status)}
	}

	token, ok := cookieFragment(header.Values("Set-Cookie"), mfaCookie)
	if !ok {
		return StepSecondFactor, jar, &StepError{Step: StepSecondFactor, Kind: MfaCookieMissing, Status: status,
			Err: fmt.Errorf("no %s cookie", mfaCookie)}
	}
	return StepApplyUpdate, jar.With(token), nil
}

func (s *Session) applyUpdate(ctx context.Context, jar Jar, ipv4 netip.Addr) (Step, Jar, error) {
	body := encodeForm("endpoint", ipv4.String(), "rdns_server", "none", "change", "1", "action", "step1")

	status, _, err := s.post(ctx, updatePath, body, jar)
	if err != nil {
		return StepApplyUpdate, jar, &StepError{Step: StepApplyUpdate, Kind: UpdateRequestFailed, Err: err}
	}
	if status < http.StatusOK || status > http.StatusFound {
		return StepApplyUpdate, jar, &StepError{Step: StepApplyUpdate, Kind: UpdateRequestFailed, Status: status,
			Err: fmt.Errorf("unexpected status %d", status)}
	}
	return StepDone, jar, nil
}

// post submits a form and returns the status and headers. The body is
// drained and discarded.
func (s *Session) post(ctx context.Context, path, body string, jar Jar) (int, http.Header, error) {
	target := s.base.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if jar.Len() > 0 {
		req.Header.Set("Cookie", jar.Header())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, resp.Header, nil
}

// encodeForm encodes key/value pairs in the given order.
func encodeForm(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pairs[i]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pairs[i+1]))
	}
	return b.String()
}
