// Package cloudflare manages a zone hosted on Cloudflare DNS.
//
// Record lookups use the cloudflare-go SDK. Change sets are submitted
// through the dns_records/batch endpoint, which Cloudflare executes as a
// single transaction.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Provider implements zone.Zone for Cloudflare DNS.
type Provider struct {
	name    string
	zone    string // Zone name (for display/logging)
	proxied bool
	client  *Client
	logger  *slog.Logger

	// zoneIDOnce ensures zone ID lookup happens only once
	zoneIDOnce sync.Once
	zoneID     string
	zoneIDErr  error
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

// New creates a new Cloudflare zone.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:    name,
		zone:    config.Zone,
		zoneID:  config.ZoneID,
		proxied: config.Proxied,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []ClientOption{WithLogger(p.logger), WithMaxRetries(config.MaxRetries)}
	if config.APIURL != "" {
		clientOpts = append(clientOpts, WithAPIEndpoint(config.APIURL))
	}
	client, err := NewClient(config.Token, clientOpts...)
	if err != nil {
		return nil, err
	}
	p.client = client

	return p, nil
}

// Factory returns a zone.Factory for Cloudflare zones.
func Factory(logger *slog.Logger) zone.Factory {
	return func(name string, configMap map[string]string) (zone.Zone, error) {
		cfg, err := LoadConfigFromMap(name, configMap)
		if err != nil {
			return nil, err
		}
		return New(name, cfg, WithProviderLogger(logger))
	}
}

// Name returns the zone instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "cloudflare".
func (p *Provider) Type() string {
	return "cloudflare"
}

// ZoneID returns the resolved zone ID, looking it up if necessary.
func (p *Provider) ZoneID() (string, error) {
	if p.zoneID != "" {
		return p.zoneID, nil
	}

	p.zoneIDOnce.Do(func() {
		id, err := p.client.ZoneID(p.zone)
		if err != nil {
			p.zoneIDErr = err
			return
		}
		p.zoneID = id
	})

	if p.zoneIDErr != nil {
		return "", p.zoneIDErr
	}
	return p.zoneID, nil
}

// Ping checks connectivity to the Cloudflare API.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return p.wrap("ping", err)
	}
	return nil
}

// Records returns the A/AAAA records named name.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	zoneID, err := p.ZoneID()
	if err != nil {
		return nil, p.wrap("lookup", err)
	}

	found, err := p.client.ListRecords(ctx, zoneID, name)
	if err != nil {
		return nil, p.wrap("lookup", err)
	}

	var records []zone.ResourceRecord
	for _, r := range found {
		recordType := zone.RecordType(r.Type)
		if !zone.HasType(types, recordType) {
			continue
		}
		record, err := zone.NewRecord(recordType, zone.FQDN(strings.ToLower(r.Name)), r.TTL, r.Content)
		if err != nil {
			return nil, zone.WrapError(p.name, "lookup", fmt.Errorf("record %s: %w", r.ID, err))
		}
		records = append(records, record.WithID(r.ID))
	}

	p.logger.Debug("listed records",
		slog.String("provider", p.name),
		slog.String("name", name),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// Apply submits the change set as one batch.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapErrorCode(p.name, "apply", http.StatusBadRequest, err)
	}

	zoneID, err := p.ZoneID()
	if err != nil {
		return p.wrap("apply", err)
	}

	deletes, err := p.deletionIDs(ctx, changes.Deletions)
	if err != nil {
		return err
	}

	req := batchRequest{Deletes: deletes}
	for _, r := range changes.Additions {
		req.Posts = append(req.Posts, batchPost{
			Type:    string(r.Type),
			Name:    strings.TrimSuffix(r.Name, "."),
			Content: r.Data,
			TTL:     r.TTL,
			Proxied: p.proxied,
		})
	}

	if err := p.client.Batch(ctx, zoneID, req); err != nil {
		return p.wrap("apply", err)
	}

	p.logger.Info("applied change set",
		slog.String("provider", p.name),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
		slog.Bool("proxied", p.proxied),
	)
	return nil
}

// deletionIDs returns the Cloudflare IDs of the records to delete. Records
// that came from Records carry their ID; others are matched by content.
func (p *Provider) deletionIDs(ctx context.Context, deletions []zone.ResourceRecord) ([]batchDelete, error) {
	var out []batchDelete
	current := make(map[string][]zone.ResourceRecord)

	for _, d := range deletions {
		if d.ID != "" {
			out = append(out, batchDelete{ID: d.ID})
			continue
		}

		name := strings.ToLower(d.Name)
		records, ok := current[name]
		if !ok {
			var err error
			records, err = p.Records(ctx, d.Name, zone.RecordTypeA, zone.RecordTypeAAAA)
			if err != nil {
				return nil, err
			}
			current[name] = records
		}

		id := ""
		for _, r := range records {
			if r.Equal(d) {
				id = r.ID
				break
			}
		}
		if id == "" {
			return nil, zone.WrapErrorCode(p.name, "apply", http.StatusPreconditionFailed,
				fmt.Errorf("%w: %s not found", zone.ErrPrecondition, d))
		}
		out = append(out, batchDelete{ID: id})
	}
	return out, nil
}

// wrap attaches the zone name, the HTTP status and the matching sentinel.
func (p *Provider) wrap(op string, err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return zone.WrapError(p.name, op, fmt.Errorf("%w: %w", zone.ErrUnavailable, err))
	}

	switch {
	case se.Status == 0 || se.Status >= 500:
		err = fmt.Errorf("%w: %w", zone.ErrUnavailable, err)
	case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
		err = fmt.Errorf("%w: %w", zone.ErrUnauthorized, err)
	case se.Status == http.StatusNotFound && op == "apply":
		err = fmt.Errorf("%w: %w", zone.ErrPrecondition, err)
	}
	return zone.WrapErrorCode(p.name, op, se.Status, err)
}
