package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/dynhost/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Provider implements zone.Zone over RFC 2136 dynamic updates.
type Provider struct {
	name   string
	zone   string
	client *dnsupdate.Client
	logger *slog.Logger
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a new RFC 2136 zone.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:   name,
		zone:   config.Zone,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	client, err := dnsupdate.NewClient(config.ToDNSUpdateConfig(), dnsupdate.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("creating dnsupdate client: %w", err)
	}
	p.client = client

	return p, nil
}

// Name returns the zone instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "rfc2136".
func (p *Provider) Type() string {
	return "rfc2136"
}

// Zone returns the zone apex.
func (p *Provider) Zone() string {
	return p.zone
}

// Ping checks that the server answers for the zone.
func (p *Provider) Ping(ctx context.Context) error {
	return zone.WrapError(p.name, "ping", classify(p.client.Ping(ctx)))
}

// Records queries the server once per requested type.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	fqdn := zone.FQDN(name)
	var records []zone.ResourceRecord

	for _, t := range types {
		qtype, err := toQType(t)
		if err != nil {
			return nil, zone.WrapError(p.name, "lookup", err)
		}

		found, err := p.client.Query(ctx, fqdn, qtype)
		if err != nil {
			return nil, zone.WrapError(p.name, "lookup", classify(err))
		}

		for _, r := range found {
			record, err := zone.NewRecord(t, dns.CanonicalName(r.Name), int(r.TTL), r.RData)
			if err != nil {
				return nil, zone.WrapError(p.name, "lookup", err)
			}
			records = append(records, record)
		}
	}

	return records, nil
}

// Apply sends the change set as one UPDATE message.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapError(p.name, "apply", err)
	}

	remove, err := toUpdateRecords(changes.Deletions)
	if err != nil {
		return zone.WrapError(p.name, "apply", err)
	}
	insert, err := toUpdateRecords(changes.Additions)
	if err != nil {
		return zone.WrapError(p.name, "apply", err)
	}

	if err := p.client.Apply(ctx, remove, insert); err != nil {
		return zone.WrapError(p.name, "apply", classify(err))
	}

	p.logger.Info("RFC 2136 change set applied",
		slog.String("zone", p.name),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
	)
	return nil
}

// classify attaches the zone sentinel matching a dnsupdate failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dnsupdate.ErrPrerequisite):
		return fmt.Errorf("%w: %w", zone.ErrPrecondition, err)
	case errors.Is(err, dnsupdate.ErrAuthenticationFailed), errors.Is(err, dnsupdate.ErrRefused):
		return fmt.Errorf("%w: %w", zone.ErrUnauthorized, err)
	case errors.Is(err, dnsupdate.ErrConnectionFailed):
		return fmt.Errorf("%w: %w", zone.ErrUnavailable, err)
	default:
		return err
	}
}

func toQType(t zone.RecordType) (uint16, error) {
	switch t {
	case zone.RecordTypeA:
		return dns.TypeA, nil
	case zone.RecordTypeAAAA:
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("%w: unsupported record type %q", zone.ErrInvalidRecord, t)
	}
}

func toUpdateRecords(records []zone.ResourceRecord) ([]dnsupdate.Record, error) {
	out := make([]dnsupdate.Record, 0, len(records))
	for _, r := range records {
		qtype, err := toQType(r.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, dnsupdate.Record{
			Name:  r.Name,
			Type:  qtype,
			TTL:   uint32(r.TTL),
			RData: r.Data,
		})
	}
	return out, nil
}
