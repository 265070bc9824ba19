package rfc2136

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// authServer answers queries from a record list and applies updates whose
// prerequisites hold.
type authServer struct {
	addr string

	mu      sync.Mutex
	records []dns.RR
	updates int
}

func startAuthServer(t *testing.T, records ...string) *authServer {
	t.Helper()

	s := &authServer{}
	for _, line := range records {
		rr, err := dns.NewRR(line)
		if err != nil {
			t.Fatalf("dns.NewRR(%q) error = %v", line, err)
		}
		s.records = append(s.records, rr)
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.addr = pc.LocalAddr().String()

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(s.serve),
		MsgAcceptFunc:     func(dns.Header) dns.MsgAcceptAction { return dns.MsgAccept },
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return s
}

func (s *authServer) serve(w dns.ResponseWriter, r *dns.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := new(dns.Msg)
	m.SetReply(r)

	switch r.Opcode {
	case dns.OpcodeQuery:
		q := r.Question[0]
		if q.Qtype == dns.TypeSOA {
			soa, _ := dns.NewRR(q.Name + " 3600 IN SOA ns1.example.com. admin.example.com. 1 3600 600 86400 60")
			m.Answer = append(m.Answer, soa)
			break
		}
		for _, rr := range s.records {
			if strings.EqualFold(rr.Header().Name, q.Name) && rr.Header().Rrtype == q.Qtype {
				m.Answer = append(m.Answer, dns.Copy(rr))
			}
		}
	case dns.OpcodeUpdate:
		s.updates++
		for _, pre := range r.Answer {
			if s.find(pre) < 0 {
				m.Rcode = dns.RcodeNXRrset
				_ = w.WriteMsg(m)
				return
			}
		}
		for _, rr := range r.Ns {
			if rr.Header().Class == dns.ClassNONE {
				if i := s.find(rr); i >= 0 {
					s.records = append(s.records[:i], s.records[i+1:]...)
				}
				continue
			}
			s.records = append(s.records, dns.Copy(rr))
		}
	}
	_ = w.WriteMsg(m)
}

func (s *authServer) find(target dns.RR) int {
	for i, rr := range s.records {
		a, b := dns.Copy(rr), dns.Copy(target)
		a.Header().Class, b.Header().Class = dns.ClassINET, dns.ClassINET
		if dns.IsDuplicate(a, b) {
			return i
		}
	}
	return -1
}

func (s *authServer) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *authServer) dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.records))
	for _, rr := range s.records {
		lines = append(lines, rr.String())
	}
	return strings.Join(lines, "\n")
}

func newTestProvider(t *testing.T, addr string) *Provider {
	t.Helper()
	p, err := New("home", &Config{Server: addr, Zone: "example.com.", Timeout: 2}, WithProviderLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func mustRecord(t *testing.T, rt zone.RecordType, name, data string) zone.ResourceRecord {
	t.Helper()
	r, err := zone.NewRecord(rt, name, 300, data)
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	return r
}

func TestProvider_Identity(t *testing.T) {
	p := newTestProvider(t, "127.0.0.1:53")
	if p.Name() != "home" {
		t.Errorf("Name() = %v, want %v", p.Name(), "home")
	}
	if p.Type() != "rfc2136" {
		t.Errorf("Type() = %v, want %v", p.Type(), "rfc2136")
	}
	if p.Zone() != "example.com." {
		t.Errorf("Zone() = %v, want %v", p.Zone(), "example.com.")
	}
}

func TestProvider_Ping(t *testing.T) {
	srv := startAuthServer(t)
	p := newTestProvider(t, srv.addr)
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestProvider_Records(t *testing.T) {
	srv := startAuthServer(t,
		"Home.example.com. 300 IN A 1.2.3.0",
		"home.example.com. 300 IN AAAA 2001:db8::1",
		"home.example.com. 300 IN TXT \"keep\"",
	)
	p := newTestProvider(t, srv.addr)

	got, err := p.Records(context.Background(), "home.example.com.", zone.RecordTypeA, zone.RecordTypeAAAA)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Records() returned %d records, want 2: %v", len(got), got)
	}
	if got[0].Name != "home.example.com." || got[0].Data != "1.2.3.0" {
		t.Errorf("Records()[0] = %v", got[0])
	}

	got, err = p.Records(context.Background(), "home.example.com.", zone.RecordTypeAAAA)
	if err != nil {
		t.Fatalf("Records(AAAA) error = %v", err)
	}
	if len(got) != 1 || got[0].Type != zone.RecordTypeAAAA {
		t.Errorf("Records(AAAA) = %v", got)
	}
}

func TestProvider_Records_ZeroTTL(t *testing.T) {
	srv := startAuthServer(t,
		"home.example.com. 300 IN A 1.2.3.0",
		"home.example.com. 0 IN A 1.2.3.1",
	)
	p := newTestProvider(t, srv.addr)

	_, err := p.Records(context.Background(), "home.example.com.", zone.RecordTypeA)
	if !errors.Is(err, zone.ErrInvalidRecord) {
		t.Fatalf("Records() error = %v, want ErrInvalidRecord", err)
	}
}

func TestProvider_Apply(t *testing.T) {
	srv := startAuthServer(t,
		"home.example.com. 300 IN A 1.2.3.0",
		"home.example.com. 300 IN AAAA 2001:db8::1",
	)
	p := newTestProvider(t, srv.addr)

	err := p.Apply(context.Background(), zone.ChangeSet{
		Deletions: []zone.ResourceRecord{mustRecord(t, zone.RecordTypeA, "home.example.com.", "1.2.3.0")},
		Additions: []zone.ResourceRecord{mustRecord(t, zone.RecordTypeA, "home.example.com.", "1.2.3.4")},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	dump := srv.dump()
	if strings.Contains(dump, "1.2.3.0") || !strings.Contains(dump, "1.2.3.4") {
		t.Errorf("zone after Apply():\n%s", dump)
	}
	if !strings.Contains(dump, "2001:db8::1") {
		t.Errorf("AAAA record should be untouched:\n%s", dump)
	}
	if n := srv.updateCount(); n != 1 {
		t.Errorf("server saw %d UPDATE messages, want 1", n)
	}
}

func TestProvider_Apply_Stale(t *testing.T) {
	srv := startAuthServer(t, "home.example.com. 300 IN A 5.5.5.5")
	p := newTestProvider(t, srv.addr)

	err := p.Apply(context.Background(), zone.ChangeSet{
		Deletions: []zone.ResourceRecord{mustRecord(t, zone.RecordTypeA, "home.example.com.", "1.2.3.0")},
		Additions: []zone.ResourceRecord{mustRecord(t, zone.RecordTypeA, "home.example.com.", "1.2.3.4")},
	})
	if !zone.IsPrecondition(err) {
		t.Fatalf("Apply() error = %v, want precondition failure", err)
	}
	var pe *zone.ProviderError
	if !errors.As(err, &pe) || pe.Zone != "home" {
		t.Errorf("Apply() error = %#v, want ProviderError for zone home", err)
	}
	if dump := srv.dump(); !strings.Contains(dump, "5.5.5.5") || strings.Contains(dump, "1.2.3.4") {
		t.Errorf("zone changed after rejected update:\n%s", dump)
	}
}

func TestProvider_Apply_Empty(t *testing.T) {
	p := newTestProvider(t, "127.0.0.1:1")
	if err := p.Apply(context.Background(), zone.ChangeSet{}); err != nil {
		t.Errorf("Apply(empty) error = %v", err)
	}
}

func TestProvider_Unreachable(t *testing.T) {
	p, err := New("home", &Config{Server: "127.0.0.1:1", Zone: "example.com.", Timeout: 1}, WithProviderLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = p.Records(ctx, "home.example.com.", zone.RecordTypeA)
	if !zone.IsUnavailable(err) {
		t.Errorf("Records() error = %v, want unavailable", err)
	}
}

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	if err := classify(errors.New("boom")); zone.IsPrecondition(err) || zone.IsUnauthorized(err) {
		t.Errorf("classify(plain) = %v, should carry no sentinel", err)
	}
}
