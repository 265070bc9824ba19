// Package server is the HTTP front end of the updater. It authenticates the
// caller, validates and normalises the parameters, and hands the update to
// the dispatcher.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/dynhost/internal/dispatcher"
	"gitlab.bluewillows.net/root/dynhost/internal/logging"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

const maxBodySize = 64 << 10

// Updater runs a validated update.
type Updater interface {
	Handle(ctx context.Context, p dispatcher.Params) dispatcher.Response
}

// Metrics counts responses the server produces itself.
type Metrics interface {
	ObserveRequest(code int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(int) {}

// Config holds the request checks.
type Config struct {
	Addr         string
	Token        string
	AllowedHosts []string // "*" allows any host
	DefaultZone  string
	TrustProxy   bool // take the client address from X-Forwarded-For
}

// Server serves the update endpoint.
type Server struct {
	cfg     Config
	updater Updater
	logger  *slog.Logger
	metrics Metrics

	listener net.Listener
	server   *http.Server
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Server.
func New(cfg Config, updater Updater, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		updater: updater,
		logger:  slog.Default(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /update", s.handleUpdate)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("GET /{$}", s.handleUpdate)
	mux.HandleFunc("POST /{$}", s.handleUpdate)
	return s.logRequests(mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("update server starting", slog.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("update server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := readParams(r)
	if err != nil {
		s.reject(ctx, w, dispatcher.Failure(http.StatusBadRequest, "bad request", err.Error()))
		return
	}

	p, failure := s.validate(r, params)
	if failure != nil {
		s.reject(ctx, w, *failure)
		return
	}

	resp := s.updater.Handle(ctx, p)
	writeJSON(w, resp.Status(), resp)
}

// validate applies the request checks in order and returns the dispatcher
// parameters or the first failure.
func (s *Server) validate(r *http.Request, params map[string]string) (dispatcher.Params, *dispatcher.Response) {
	fail := func(code int, title, detail string) (dispatcher.Params, *dispatcher.Response) {
		resp := dispatcher.Failure(code, title, detail)
		return dispatcher.Params{}, &resp
	}

	if !s.tokenValid(params["token"]) {
		return fail(http.StatusUnauthorized, "unauthorized", "Login Required")
	}

	host := params["host"]
	if host == "" {
		return fail(http.StatusBadRequest, "missing host", "Provide a valid host name")
	}
	if !s.hostAllowed(host) {
		return fail(http.StatusUnauthorized, "illegal host", fmt.Sprintf("Host %q is not allowed", host))
	}
	name, err := zone.NormalizeHost(host)
	if err != nil {
		return fail(http.StatusBadRequest, "illegal host", fmt.Sprintf("Host %q is not a valid name", host))
	}

	rawV4, rawV6 := params["ipv4"], params["ipv6"]
	if rawV4 == "" && rawV6 == "" {
		addr, ok := s.clientAddr(r)
		switch {
		case ok && addr.Is4():
			rawV4 = addr.String()
		case ok:
			rawV6 = addr.String()
		default:
			return fail(http.StatusBadRequest, "missing ip", "Could not evaluate ip address. Please provide with request.")
		}
	}

	p := dispatcher.Params{Host: name, Zone: params["zone"]}
	if rawV4 != "" {
		addr, err := netip.ParseAddr(rawV4)
		if err != nil || !addr.Is4() {
			return fail(http.StatusBadRequest, "illegal IPv4", "Could not parse IPv4 address: "+rawV4)
		}
		p.IPv4 = addr
	}
	if rawV6 != "" {
		addr, err := netip.ParseAddr(rawV6)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return fail(http.StatusBadRequest, "illegal IPv6", "Could not parse IPv6 address: "+rawV6)
		}
		p.IPv6 = addr.WithZone("")
	}
	if p.Zone == "" {
		p.Zone = s.cfg.DefaultZone
	}
	return p, nil
}

func (s *Server) tokenValid(token string) bool {
	if s.cfg.Token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1
}

func (s *Server) hostAllowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, allowed := range s.cfg.AllowedHosts {
		if allowed == "*" || strings.TrimSuffix(strings.ToLower(allowed), ".") == host {
			return true
		}
	}
	return false
}

// clientAddr returns the caller's address: the first X-Forwarded-For hop
// when proxies are trusted, the connection's remote address otherwise.
func (s *Server) clientAddr(r *http.Request) (netip.Addr, bool) {
	if s.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.Unmap().WithZone(""), true
			}
		}
	}
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().WithZone(""), true
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr.Unmap().WithZone(""), true
	}
	return netip.Addr{}, false
}

// readParams merges the body parameters (form or JSON) with the query
// string. Query values win.
func readParams(r *http.Request) (map[string]string, error) {
	params := map[string]string{}

	if r.Method == http.MethodPost && r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return nil, fmt.Errorf("invalid JSON body: %w", err)
			}
			for k, v := range body {
				switch v := v.(type) {
				case string:
					params[k] = v
				case float64, bool:
					params[k] = fmt.Sprint(v)
				}
			}
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return nil, fmt.Errorf("invalid form body: %w", err)
			}
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}
		}
	}

	for k, v := range r.URL.Query() {
		if len(v) > 0 && v[0] != "" {
			params[k] = v[0]
		}
	}
	return params, nil
}

func (s *Server) reject(ctx context.Context, w http.ResponseWriter, resp dispatcher.Response) {
	s.logger.WarnContext(ctx, "update rejected",
		slog.Int("code", resp.Status()),
		slog.String("title", resp.Title),
		slog.String("detail", resp.Detail),
	)
	s.metrics.ObserveRequest(resp.Status())
	writeJSON(w, resp.Status(), resp)
}

// logRequests assigns the request id and logs every request when it ends.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.InfoContext(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
