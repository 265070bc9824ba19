// Package health serves liveness, readiness and Prometheus metrics.
//
// /ready pings every registered zone. A failing zone makes the service not
// ready; a failing optional component (the audit stream) only degrades it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Health status values.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Checker reports whether a component is usable.
type Checker func(ctx context.Context) error

// ComponentStatus is the result of one check.
type ComponentStatus struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Response is the body of /health and /ready.
type Response struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

type check struct {
	fn       Checker
	optional bool
}

// Server provides /health, /ready, and /metrics endpoints.
type Server struct {
	port    int
	mux     *http.ServeMux
	server  *http.Server
	addr    net.Addr
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]check
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

// WithTimeout bounds each readiness probe.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New creates a health server for the given port. Port 0 picks a free port.
func New(port int, opts ...Option) *Server {
	s := &Server{
		port:    port,
		mux:     http.NewServeMux(),
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		checks:  make(map[string]check),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// RegisterChecker adds a required component.
func (s *Server) RegisterChecker(name string, fn Checker) {
	s.register(name, check{fn: fn})
}

// RegisterOptional adds a component whose failure only degrades readiness.
func (s *Server) RegisterOptional(name string, fn Checker) {
	s.register(name, check{fn: fn, optional: true})
}

// RegisterZones adds a required "zone:<name>" check pinging each zone.
func (s *Server) RegisterZones(zones ...zone.Zone) {
	for _, z := range zones {
		s.RegisterChecker("zone:"+z.Name(), z.Ping)
	}
}

func (s *Server) register(name string, c check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
	s.logger.Debug("registered health checker", slog.String("name", name), slog.Bool("optional", c.optional))
}

// Handler returns the health mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := make(map[string]check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		components = make([]ComponentStatus, 0, len(checks))
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := ComponentStatus{Name: name, Healthy: true, Optional: c.optional}
			if err := c.fn(ctx); err != nil {
				status.Healthy = false
				status.Error = err.Error()
				s.logger.Warn("health check failed",
					slog.String("component", name),
					slog.Bool("optional", c.optional),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			components = append(components, status)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	resp := Response{Status: StatusReady, Components: components}
	code := http.StatusOK
	for _, c := range components {
		switch {
		case c.Healthy:
		case c.Optional:
			if resp.Status == StatusReady {
				resp.Status = StatusDegraded
			}
		default:
			resp.Status = StatusNotReady
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("health server starting", slog.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != http.ErrServerClosed {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the listening address after Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown gracefully shuts down the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
