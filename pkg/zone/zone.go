// Package zone defines the capability every managed DNS zone exposes to the
// updater: record lookup and atomic change submission.
package zone

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

// RecordType represents the type of an address record.
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

// RecordTypeFor returns the record type that carries addr.
func RecordTypeFor(addr netip.Addr) RecordType {
	if addr.Unmap().Is4() {
		return RecordTypeA
	}
	return RecordTypeAAAA
}

// ParseRecordType parses "A" or "AAAA" (case-insensitive).
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return RecordTypeA, nil
	case "AAAA":
		return RecordTypeAAAA, nil
	default:
		return "", fmt.Errorf("%w: unsupported record type %q", ErrInvalidRecord, s)
	}
}

// ResourceRecord is one published address record.
// Values are immutable once constructed; use NewRecord to build them.
type ResourceRecord struct {
	Type RecordType
	Name string // fully qualified, always ends with a dot
	TTL  int
	Data string // address literal matching Type

	// ID is a provider-specific identifier (e.g. a Cloudflare record id).
	// It is never compared.
	ID string
}

// NewRecord creates a validated ResourceRecord.
func NewRecord(recordType RecordType, name string, ttl int, data string) (ResourceRecord, error) {
	r := ResourceRecord{
		Type: recordType,
		Name: name,
		TTL:  ttl,
		Data: data,
	}
	if err := r.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return r, nil
}

// Validate checks the record invariants.
func (r ResourceRecord) Validate() error {
	if r.Name == "" || !strings.HasSuffix(r.Name, ".") {
		return fmt.Errorf("%w: name %q must be fully qualified", ErrInvalidRecord, r.Name)
	}
	if r.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %d", ErrInvalidRecord, r.TTL)
	}

	addr, err := netip.ParseAddr(r.Data)
	if err != nil {
		return fmt.Errorf("%w: %s data %q is not an address", ErrInvalidRecord, r.Type, r.Data)
	}

	switch r.Type {
	case RecordTypeA:
		if !addr.Is4() {
			return fmt.Errorf("%w: A data %q is not an IPv4 address", ErrInvalidRecord, r.Data)
		}
	case RecordTypeAAAA:
		if !addr.Is6() || addr.Is4In6() {
			return fmt.Errorf("%w: AAAA data %q is not an IPv6 address", ErrInvalidRecord, r.Data)
		}
	default:
		return fmt.Errorf("%w: unsupported record type %q", ErrInvalidRecord, r.Type)
	}

	return nil
}

// WithID returns a copy of r carrying a provider-specific identifier.
func (r ResourceRecord) WithID(id string) ResourceRecord {
	r.ID = id
	return r
}

// String renders the record in zone-file order.
func (r ResourceRecord) String() string {
	return fmt.Sprintf("%s %d IN %s %s", r.Name, r.TTL, r.Type, r.Data)
}

// Equal reports whether two records are the same record.
// Provider IDs are not compared; names compare case-insensitively.
func (r ResourceRecord) Equal(o ResourceRecord) bool {
	return r.Type == o.Type &&
		strings.EqualFold(r.Name, o.Name) &&
		r.TTL == o.TTL &&
		sameAddress(r.Data, o.Data)
}

func sameAddress(a, b string) bool {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa == pb
}

// ChangeSet is one atomic transaction against a zone.
type ChangeSet struct {
	Additions []ResourceRecord
	Deletions []ResourceRecord
}

// Empty reports whether the change set contains no changes.
func (c ChangeSet) Empty() bool {
	return len(c.Additions) == 0 && len(c.Deletions) == 0
}

// Validate checks every record in the change set.
func (c ChangeSet) Validate() error {
	for _, r := range c.Additions {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("addition %s: %w", r.Name, err)
		}
	}
	for _, r := range c.Deletions {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("deletion %s: %w", r.Name, err)
		}
	}
	return nil
}

// Zone is a handle to one externally managed DNS zone.
type Zone interface {
	// Name returns the zone instance name (e.g. "home-zone").
	Name() string

	// Type returns the provider type (e.g. "rfc2136", "cloudflare").
	Type() string

	// Ping checks connectivity to the provider.
	Ping(ctx context.Context) error

	// Records returns all records named exactly name whose type is one of types.
	Records(ctx context.Context, name string, types ...RecordType) ([]ResourceRecord, error)

	// Apply submits the change set as a single transaction. Either every
	// addition and deletion takes effect or none does.
	Apply(ctx context.Context, changes ChangeSet) error
}

// FQDN returns name with a trailing dot.
func FQDN(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// NormalizeHost converts an internationalised host name to its ASCII form
// and returns it fully qualified.
func NormalizeHost(host string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", err
	}
	if ascii == "" {
		return "", fmt.Errorf("empty host")
	}
	return ascii + ".", nil
}

// HasType reports whether t is one of types.
func HasType(types []RecordType, t RecordType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
