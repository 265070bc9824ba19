package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/dynhost/internal/dispatcher"
	"gitlab.bluewillows.net/root/dynhost/internal/logging"
)

const testToken = "s3cret"

type fakeUpdater struct {
	mu        sync.Mutex
	calls     []dispatcher.Params
	requestID string
	resp      dispatcher.Response
}

func (f *fakeUpdater) Handle(ctx context.Context, p dispatcher.Params) dispatcher.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	f.requestID = logging.RequestID(ctx)
	if f.resp.Code != 0 {
		return f.resp
	}
	return dispatcher.Success(dispatcher.Values{Host: p.Host})
}

type countingMetrics struct{ codes []int }

func (m *countingMetrics) ObserveRequest(code int) { m.codes = append(m.codes, code) }

func newTestServer(cfg Config) (*Server, *fakeUpdater, *countingMetrics) {
	if cfg.Token == "" {
		cfg.Token = testToken
	}
	if cfg.AllowedHosts == nil {
		cfg.AllowedHosts = []string{"home.example.com", "bücher.example.com"}
	}
	if cfg.DefaultZone == "" {
		cfg.DefaultZone = "home"
	}
	u := &fakeUpdater{}
	m := &countingMetrics{}
	s := New(cfg, u, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithMetrics(m))
	return s, u, m
}

type errorBody struct {
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestHandleUpdate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		remoteAddr string
		want       errorBody
	}{
		{
			name:  "missing token",
			query: "host=home.example.com&ipv4=192.0.2.1",
			want:  errorBody{401, "unauthorized", "Login Required"},
		},
		{
			name:  "wrong token",
			query: "token=nope&host=home.example.com&ipv4=192.0.2.1",
			want:  errorBody{401, "unauthorized", "Login Required"},
		},
		{
			name:  "missing host",
			query: "token=s3cret&ipv4=192.0.2.1",
			want:  errorBody{400, "missing host", "Provide a valid host name"},
		},
		{
			name:  "host not allowed",
			query: "token=s3cret&host=evil.example.com&ipv4=192.0.2.1",
			want:  errorBody{401, "illegal host", `Host "evil.example.com" is not allowed`},
		},
		{
			name:       "no address and unusable client address",
			query:      "token=s3cret&host=home.example.com",
			remoteAddr: "pipe",
			want:       errorBody{400, "missing ip", "Could not evaluate ip address. Please provide with request."},
		},
		{
			name:  "bad ipv4",
			query: "token=s3cret&host=home.example.com&ipv4=192.0.2",
			want:  errorBody{400, "illegal IPv4", "Could not parse IPv4 address: 192.0.2"},
		},
		{
			name:  "ipv6 in ipv4",
			query: "token=s3cret&host=home.example.com&ipv4=2001:db8::1",
			want:  errorBody{400, "illegal IPv4", "Could not parse IPv4 address: 2001:db8::1"},
		},
		{
			name:  "bad ipv6",
			query: "token=s3cret&host=home.example.com&ipv6=nope",
			want:  errorBody{400, "illegal IPv6", "Could not parse IPv6 address: nope"},
		},
		{
			name:  "ipv4 in ipv6",
			query: "token=s3cret&host=home.example.com&ipv4=192.0.2.1&ipv6=192.0.2.1",
			want:  errorBody{400, "illegal IPv6", "Could not parse IPv6 address: 192.0.2.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, u, m := newTestServer(Config{})
			r := httptest.NewRequest(http.MethodGet, "/update?"+tt.query, nil)
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			w := serve(s, r)

			if w.Code != tt.want.Code {
				t.Errorf("status = %d, want %d", w.Code, tt.want.Code)
			}
			var got errorBody
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("body = %+v, want %+v", got, tt.want)
			}
			if len(u.calls) != 0 {
				t.Errorf("updater called %d times, want 0", len(u.calls))
			}
			if len(m.codes) != 1 || m.codes[0] != tt.want.Code {
				t.Errorf("metrics = %v, want [%d]", m.codes, tt.want.Code)
			}
		})
	}
}

func TestHandleUpdate_Params(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		query      string
		remoteAddr string
		header     http.Header
		want       dispatcher.Params
	}{
		{
			name:  "explicit addresses and default zone",
			query: "token=s3cret&host=home.example.com&ipv4=192.0.2.1&ipv6=2001:db8::1",
			want: dispatcher.Params{Host: "home.example.com.", Zone: "home",
				IPv4: netip.MustParseAddr("192.0.2.1"), IPv6: netip.MustParseAddr("2001:db8::1")},
		},
		{
			name:  "explicit zone and trailing dot",
			query: "token=s3cret&host=home.example.com.&zone=office&ipv6=2001:db8::1",
			want:  dispatcher.Params{Host: "home.example.com.", Zone: "office", IPv6: netip.MustParseAddr("2001:db8::1")},
		},
		{
			name:  "internationalised host",
			query: "token=s3cret&host=" + url.QueryEscape("bücher.example.com") + "&ipv4=192.0.2.1",
			want:  dispatcher.Params{Host: "xn--bcher-kva.example.com.", Zone: "home", IPv4: netip.MustParseAddr("192.0.2.1")},
		},
		{
			name:       "ipv4 from remote address",
			query:      "token=s3cret&host=home.example.com",
			remoteAddr: "198.51.100.7:52311",
			want:       dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv4: netip.MustParseAddr("198.51.100.7")},
		},
		{
			name:       "ipv6 from remote address",
			query:      "token=s3cret&host=home.example.com",
			remoteAddr: "[2001:db8::7]:52311",
			want:       dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv6: netip.MustParseAddr("2001:db8::7")},
		},
		{
			name:       "forwarded for ignored without trust",
			query:      "token=s3cret&host=home.example.com",
			remoteAddr: "10.0.0.2:1000",
			header:     http.Header{"X-Forwarded-For": {"203.0.113.50"}},
			want:       dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv4: netip.MustParseAddr("10.0.0.2")},
		},
		{
			name:       "first forwarded hop when trusted",
			cfg:        Config{TrustProxy: true},
			query:      "token=s3cret&host=home.example.com",
			remoteAddr: "10.0.0.2:1000",
			header:     http.Header{"X-Forwarded-For": {"203.0.113.50, 10.0.0.1"}},
			want:       dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv4: netip.MustParseAddr("203.0.113.50")},
		},
		{
			name:  "wildcard allow-list",
			cfg:   Config{AllowedHosts: []string{"*"}},
			query: "token=s3cret&host=any.example.org&ipv4=192.0.2.1",
			want:  dispatcher.Params{Host: "any.example.org.", Zone: "home", IPv4: netip.MustParseAddr("192.0.2.1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, u, _ := newTestServer(tt.cfg)
			r := httptest.NewRequest(http.MethodGet, "/update?"+tt.query, nil)
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			for k, v := range tt.header {
				r.Header[k] = v
			}

			w := serve(s, r)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if len(u.calls) != 1 {
				t.Fatalf("updater called %d times, want 1", len(u.calls))
			}
			if got := u.calls[0]; got != tt.want {
				t.Errorf("params = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleUpdate_Body(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		query       string
		want        dispatcher.Params
	}{
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "token=s3cret&host=home.example.com&ipv4=192.0.2.1",
			want:        dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv4: netip.MustParseAddr("192.0.2.1")},
		},
		{
			name:        "json body",
			contentType: "application/json; charset=utf-8",
			body:        `{"token":"s3cret","host":"home.example.com","ipv6":"2001:db8::2","zone":"office"}`,
			want:        dispatcher.Params{Host: "home.example.com.", Zone: "office", IPv6: netip.MustParseAddr("2001:db8::2")},
		},
		{
			name:        "query wins over body",
			contentType: "application/x-www-form-urlencoded",
			body:        "token=s3cret&host=home.example.com&ipv4=192.0.2.1",
			query:       "ipv4=192.0.2.99",
			want:        dispatcher.Params{Host: "home.example.com.", Zone: "home", IPv4: netip.MustParseAddr("192.0.2.99")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, u, _ := newTestServer(Config{})
			target := "/"
			if tt.query != "" {
				target += "?" + tt.query
			}
			r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)

			w := serve(s, r)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if got := u.calls[0]; got != tt.want {
				t.Errorf("params = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleUpdate_BadJSON(t *testing.T) {
	s, _, _ := newTestServer(Config{})
	r := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")

	if w := serve(s, r); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleUpdate_PassesResponseAndRequestID(t *testing.T) {
	s, u, _ := newTestServer(Config{})
	u.resp = dispatcher.Failure(503, "API error", "zone home: apply: provider unavailable")

	w := serve(s, httptest.NewRequest(http.MethodGet, "/update?token=s3cret&host=home.example.com&ipv4=192.0.2.1", nil))

	if w.Code != 503 {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := w.Body.String(); strings.TrimSpace(got) != `{"code":503,"title":"API error","detail":"zone home: apply: provider unavailable"}` {
		t.Errorf("body = %s", got)
	}
	id := w.Header().Get("X-Request-ID")
	if id == "" || u.requestID != id {
		t.Errorf("request id header %q, updater saw %q", id, u.requestID)
	}
}

func TestHandleUpdate_SuccessJSON(t *testing.T) {
	s, _, _ := newTestServer(Config{})
	w := serve(s, httptest.NewRequest(http.MethodGet, "/?token=s3cret&host=home.example.com&ipv4=192.0.2.1", nil))

	if got := strings.TrimSpace(w.Body.String()); got != `{"code":"200","values":{"host":"home.example.com."}}` {
		t.Errorf("body = %s", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	s, _, _ := newTestServer(Config{})
	if w := serve(s, httptest.NewRequest(http.MethodGet, "/other", nil)); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s, _, _ := newTestServer(Config{Addr: "127.0.0.1:0"})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/update?token=s3cret&host=home.example.com")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with address from the connection", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
