// Package memory implements an in-process zone. It backs dry runs and local
// testing, and is the reference for the all-or-nothing Apply contract.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Fault is called while a change set is being applied to the working copy.
// Returning an error aborts the transaction; the zone keeps its old records.
type Fault func(phase string, record zone.ResourceRecord) error

// Provider is a map-backed zone.
type Provider struct {
	name   string
	logger *slog.Logger
	fault  Fault

	mu      sync.RWMutex
	records []zone.ResourceRecord
	applied int
}

// Option configures the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecords seeds the zone.
func WithRecords(records ...zone.ResourceRecord) Option {
	return func(p *Provider) {
		p.records = append(p.records, records...)
	}
}

// WithFault injects a failure hook into Apply.
func WithFault(f Fault) Option {
	return func(p *Provider) {
		p.fault = f
	}
}

// New creates an in-memory zone.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:   name,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromMap creates an in-memory zone from a config map. RECORDS seeds the
// zone with "name type ttl data" entries separated by semicolons.
func NewFromMap(name string, config map[string]string, opts ...Option) (*Provider, error) {
	var seed []zone.ResourceRecord
	for _, entry := range strings.Split(config["RECORDS"], ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) != 4 {
			return nil, zone.ErrConfigInvalid("RECORDS", entry, "expected \"name type ttl data\"")
		}
		recordType, err := zone.ParseRecordType(fields[1])
		if err != nil {
			return nil, zone.ErrConfigInvalid("RECORDS", entry, err.Error())
		}
		ttl, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, zone.ErrConfigInvalid("RECORDS", entry, "ttl must be an integer")
		}
		r, err := zone.NewRecord(recordType, zone.FQDN(fields[0]), ttl, fields[3])
		if err != nil {
			return nil, zone.ErrConfigInvalid("RECORDS", entry, err.Error())
		}
		seed = append(seed, r)
	}
	return New(name, append([]Option{WithRecords(seed...)}, opts...)...), nil
}

// Factory returns a zone.Factory for memory zones.
func Factory(logger *slog.Logger) zone.Factory {
	return func(name string, config map[string]string) (zone.Zone, error) {
		return NewFromMap(name, config, WithLogger(logger))
	}
}

// Name returns the zone instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "memory".
func (p *Provider) Type() string { return "memory" }

// Ping always succeeds.
func (p *Provider) Ping(ctx context.Context) error { return ctx.Err() }

// Records returns the records named name of the requested types.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []zone.ResourceRecord
	for _, r := range p.records {
		if strings.EqualFold(r.Name, name) && zone.HasType(types, r.Type) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Apply applies the change set to a working copy and swaps it in only when
// every deletion matched and every addition was accepted.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapErrorCode(p.name, "apply", 400, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	working := make([]zone.ResourceRecord, len(p.records))
	copy(working, p.records)

	for _, del := range changes.Deletions {
		idx := indexOf(working, del)
		if idx < 0 {
			return zone.WrapErrorCode(p.name, "apply", 412,
				fmt.Errorf("%w: %s", zone.ErrPrecondition, del))
		}
		if p.fault != nil {
			if err := p.fault("delete", del); err != nil {
				return zone.WrapError(p.name, "apply", err)
			}
		}
		working = append(working[:idx], working[idx+1:]...)
	}

	for _, add := range changes.Additions {
		if p.fault != nil {
			if err := p.fault("add", add); err != nil {
				return zone.WrapError(p.name, "apply", err)
			}
		}
		if indexOf(working, add) >= 0 {
			continue
		}
		working = append(working, add)
	}

	p.records = working
	p.applied++

	p.logger.Debug("applied change set",
		slog.String("zone", p.name),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
	)
	return nil
}

// Snapshot returns a copy of every record in the zone.
func (p *Provider) Snapshot() []zone.ResourceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]zone.ResourceRecord, len(p.records))
	copy(out, p.records)
	return out
}

// AppliedCount returns how many change sets were committed.
func (p *Provider) AppliedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.applied
}

func indexOf(records []zone.ResourceRecord, target zone.ResourceRecord) int {
	for i, r := range records {
		if r.Equal(target) {
			return i
		}
	}
	return -1
}
