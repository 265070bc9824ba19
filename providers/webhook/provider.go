// Package webhook manages a zone through a user-supplied HTTP endpoint.
//
// The endpoint serves GET /ping, GET /records and POST /changes. A change
// request carries the deletions and additions of one change set and must
// be applied by the endpoint as a single transaction.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gitlab.bluewillows.net/root/dynhost/pkg/httputil"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Provider implements zone.Zone for webhook endpoints.
type Provider struct {
	name   string
	client *Client
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

// New creates a new webhook zone. opts configure the client.
func New(name string, config *Config, logger *slog.Logger, opts ...ClientOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := httputil.NewClient(&httputil.ClientConfig{
		Timeout:       config.Timeout,
		TLSSkipVerify: config.TLSSkipVerify,
		Logger:        logger,
	})
	if config.TLSSkipVerify {
		logger.Warn("TLS certificate verification disabled for webhook zone",
			slog.String("provider", name),
			slog.String("url", config.URL),
		)
	}

	clientOpts := append([]ClientOption{
		WithHTTPClient(httpClient),
		WithLogger(logger),
		WithRetries(config.Retries),
		WithRetryDelay(config.RetryDelay),
	}, opts...)

	return &Provider{
		name:   name,
		client: NewClient(config.URL, config.AuthHeader, config.AuthToken, clientOpts...),
		logger: logger,
	}, nil
}

// Factory returns a zone.Factory for webhook zones.
func Factory(logger *slog.Logger) zone.Factory {
	return func(name string, configMap map[string]string) (zone.Zone, error) {
		cfg, err := LoadConfigFromMap(name, configMap)
		if err != nil {
			return nil, err
		}
		return New(name, cfg, logger)
	}
}

// Name returns the zone instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "webhook".
func (p *Provider) Type() string {
	return "webhook"
}

// Ping checks connectivity to the endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return p.wrap("ping", err)
	}
	return nil
}

// Records returns the records named name of the requested types.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	wireTypes := make([]string, 0, len(types))
	for _, t := range types {
		wireTypes = append(wireTypes, string(t))
	}

	found, err := p.client.Records(ctx, name, wireTypes...)
	if err != nil {
		return nil, p.wrap("lookup", err)
	}

	var records []zone.ResourceRecord
	for _, r := range found {
		recordType, err := zone.ParseRecordType(r.Type)
		if err != nil || !zone.HasType(types, recordType) || !strings.EqualFold(zone.FQDN(r.Name), name) {
			continue
		}
		record, err := zone.NewRecord(recordType, zone.FQDN(strings.ToLower(r.Name)), r.TTL, r.Value)
		if err != nil {
			return nil, zone.WrapError(p.name, "lookup", err)
		}
		records = append(records, record.WithID(r.ID))
	}
	return records, nil
}

// Apply posts the change set as one change request.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapErrorCode(p.name, "apply", http.StatusBadRequest, err)
	}

	req := ChangeRequest{
		Deletions: make([]Record, 0, len(changes.Deletions)),
		Additions: make([]Record, 0, len(changes.Additions)),
	}
	for _, r := range changes.Deletions {
		req.Deletions = append(req.Deletions, toWire(r))
	}
	for _, r := range changes.Additions {
		req.Additions = append(req.Additions, toWire(r))
	}

	if err := p.client.Change(ctx, req); err != nil {
		return p.wrap("apply", err)
	}

	p.logger.Info("applied change set",
		slog.String("provider", p.name),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
	)
	return nil
}

func toWire(r zone.ResourceRecord) Record {
	return Record{
		Name:  r.Name,
		Type:  string(r.Type),
		Value: r.Data,
		TTL:   r.TTL,
		ID:    r.ID,
	}
}

// wrap attaches the zone name, the HTTP status and the matching sentinel.
func (p *Provider) wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return zone.WrapError(p.name, op, fmt.Errorf("%w: %w", zone.ErrUnavailable, err))
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return zone.WrapError(p.name, op, fmt.Errorf("%w: %w", zone.ErrUnavailable, err))
	}

	switch {
	case se.Status >= 500:
		err = fmt.Errorf("%w: %w", zone.ErrUnavailable, err)
	case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
		err = fmt.Errorf("%w: %w", zone.ErrUnauthorized, err)
	case se.Status == http.StatusConflict || se.Status == http.StatusPreconditionFailed:
		err = fmt.Errorf("%w: %w", zone.ErrPrecondition, err)
	case se.Status == http.StatusBadRequest || se.Status == http.StatusUnprocessableEntity:
		err = fmt.Errorf("%w: %w", zone.ErrInvalidRecord, err)
	}
	return zone.WrapErrorCode(p.name, op, se.Status, err)
}
