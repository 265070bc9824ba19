package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
	"gitlab.bluewillows.net/root/dynhost/providers/memory"
)

func newTestServer(opts ...Option) *Server {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(0, opts...)
}

func ready(t *testing.T, s *Server) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestServer_handleHealth(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestServer_handleReady_NoCheckers(t *testing.T) {
	code, resp := ready(t, newTestServer())
	if code != http.StatusOK || resp.Status != StatusReady {
		t.Errorf("got %d %q, want 200 ready", code, resp.Status)
	}
}

func TestServer_handleReady_Zones(t *testing.T) {
	s := newTestServer()
	s.RegisterZones(memory.New("home"), memory.New("office"))

	code, resp := ready(t, s)
	if code != http.StatusOK || resp.Status != StatusReady {
		t.Errorf("got %d %q, want 200 ready", code, resp.Status)
	}
	if len(resp.Components) != 2 || resp.Components[0].Name != "zone:home" || resp.Components[1].Name != "zone:office" {
		t.Errorf("components = %+v, want sorted zone checks", resp.Components)
	}
}

type downZone struct{ zone.Zone }

func (downZone) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_handleReady_ZoneDown(t *testing.T) {
	s := newTestServer()
	s.RegisterZones(memory.New("home"), downZone{memory.New("office")})

	code, resp := ready(t, s)
	if code != http.StatusServiceUnavailable || resp.Status != StatusNotReady {
		t.Errorf("got %d %q, want 503 not_ready", code, resp.Status)
	}
	for _, c := range resp.Components {
		if c.Name == "zone:office" && (c.Healthy || c.Error != "connection refused") {
			t.Errorf("office = %+v, want unhealthy with error", c)
		}
	}
}

func TestServer_handleReady_OptionalDegrades(t *testing.T) {
	s := newTestServer()
	s.RegisterZones(memory.New("home"))
	s.RegisterOptional("audit", func(context.Context) error { return errors.New("redis down") })

	code, resp := ready(t, s)
	if code != http.StatusOK || resp.Status != StatusDegraded {
		t.Errorf("got %d %q, want 200 degraded", code, resp.Status)
	}
}

func TestServer_handleReady_Timeout(t *testing.T) {
	s := newTestServer(WithTimeout(50 * time.Millisecond))
	s.RegisterChecker("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	code, resp := ready(t, s)
	if code != http.StatusServiceUnavailable || resp.Status != StatusNotReady {
		t.Errorf("got %d %q, want 503 not_ready", code, resp.Status)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := newTestServer()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
