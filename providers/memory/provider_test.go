package memory

import (
	"context"
	"errors"
	"testing"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

func rec(t zone.RecordType, data string) zone.ResourceRecord {
	return zone.ResourceRecord{Type: t, Name: "home.example.com.", TTL: 300, Data: data}
}

func TestProvider_Records(t *testing.T) {
	p := New("home",
		WithRecords(
			rec(zone.RecordTypeA, "1.2.3.0"),
			rec(zone.RecordTypeAAAA, "2001:db8::1"),
			zone.ResourceRecord{Type: zone.RecordTypeA, Name: "other.example.com.", TTL: 300, Data: "5.6.7.8"},
		),
	)

	tests := []struct {
		name  string
		host  string
		types []zone.RecordType
		want  int
	}{
		{"A only", "home.example.com.", []zone.RecordType{zone.RecordTypeA}, 1},
		{"AAAA only", "home.example.com.", []zone.RecordType{zone.RecordTypeAAAA}, 1},
		{"both", "home.example.com.", []zone.RecordType{zone.RecordTypeA, zone.RecordTypeAAAA}, 2},
		{"case-insensitive", "HOME.example.com.", []zone.RecordType{zone.RecordTypeA}, 1},
		{"absent host", "nope.example.com.", []zone.RecordType{zone.RecordTypeA}, 0},
		{"no types", "home.example.com.", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Records(context.Background(), tt.host, tt.types...)
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Records() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestProvider_Apply(t *testing.T) {
	p := New("home", WithRecords(rec(zone.RecordTypeA, "1.2.3.0"), rec(zone.RecordTypeAAAA, "2001:db8::1")))

	err := p.Apply(context.Background(), zone.ChangeSet{
		Deletions: []zone.ResourceRecord{rec(zone.RecordTypeA, "1.2.3.0")},
		Additions: []zone.ResourceRecord{rec(zone.RecordTypeA, "1.2.3.4")},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() has %d records, want 2", len(snap))
	}
	if snap[0].Type != zone.RecordTypeAAAA || snap[1].Data != "1.2.3.4" {
		t.Errorf("Snapshot() = %v, want AAAA kept and A replaced", snap)
	}
	if p.AppliedCount() != 1 {
		t.Errorf("AppliedCount() = %d, want 1", p.AppliedCount())
	}
}

func TestProvider_Apply_StaleDeletion(t *testing.T) {
	p := New("home", WithRecords(rec(zone.RecordTypeA, "1.2.3.0")))

	err := p.Apply(context.Background(), zone.ChangeSet{
		Deletions: []zone.ResourceRecord{rec(zone.RecordTypeA, "9.9.9.9")},
		Additions: []zone.ResourceRecord{rec(zone.RecordTypeA, "1.2.3.4")},
	})
	if !zone.IsPrecondition(err) {
		t.Fatalf("Apply() error = %v, want precondition failure", err)
	}
	if code := zone.StatusCode(err); code != 412 {
		t.Errorf("StatusCode() = %d, want 412", code)
	}

	snap := p.Snapshot()
	if len(snap) != 1 || snap[0].Data != "1.2.3.0" {
		t.Errorf("zone changed after failed apply: %v", snap)
	}
}

func TestProvider_Apply_FaultLeavesZoneUnchanged(t *testing.T) {
	boom := errors.New("connection reset mid-transaction")

	for _, phase := range []string{"delete", "add"} {
		t.Run(phase, func(t *testing.T) {
			p := New("home",
				WithRecords(rec(zone.RecordTypeA, "1.2.3.0")),
				WithFault(func(got string, _ zone.ResourceRecord) error {
					if got == phase {
						return boom
					}
					return nil
				}),
			)

			err := p.Apply(context.Background(), zone.ChangeSet{
				Deletions: []zone.ResourceRecord{rec(zone.RecordTypeA, "1.2.3.0")},
				Additions: []zone.ResourceRecord{rec(zone.RecordTypeA, "1.2.3.4")},
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Apply() error = %v, want %v", err, boom)
			}

			snap := p.Snapshot()
			if len(snap) != 1 || snap[0].Data != "1.2.3.0" {
				t.Errorf("Snapshot() = %v, want original record only", snap)
			}
			if p.AppliedCount() != 0 {
				t.Errorf("AppliedCount() = %d, want 0", p.AppliedCount())
			}
		})
	}
}

func TestProvider_Apply_InvalidRecord(t *testing.T) {
	p := New("home")
	err := p.Apply(context.Background(), zone.ChangeSet{
		Additions: []zone.ResourceRecord{{Type: zone.RecordTypeA, Name: "home.example.com.", TTL: 300, Data: "2001:db8::1"}},
	})
	if !errors.Is(err, zone.ErrInvalidRecord) {
		t.Errorf("Apply() error = %v, want ErrInvalidRecord", err)
	}
}

func TestNewFromMap(t *testing.T) {
	p, err := NewFromMap("home", map[string]string{
		"RECORDS": "home.example.com A 300 1.2.3.0; home.example.com. AAAA 60 2001:db8::1",
	})
	if err != nil {
		t.Fatalf("NewFromMap() error = %v", err)
	}
	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("seeded %d records, want 2", len(snap))
	}
	if snap[0].Name != "home.example.com." {
		t.Errorf("seeded name = %q, want trailing dot", snap[0].Name)
	}

	for _, bad := range []string{"home A 300", "home MX 300 1.2.3.4", "home A x 1.2.3.4", "home A 300 nope"} {
		if _, err := NewFromMap("home", map[string]string{"RECORDS": bad}); err == nil {
			t.Errorf("NewFromMap(%q) expected error", bad)
		}
	}
}
