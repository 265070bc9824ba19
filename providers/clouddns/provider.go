// Package clouddns manages a zone hosted on Google Cloud DNS.
//
// Cloud DNS stores record sets rather than single records, so a change set
// is regrouped by (name, type) before submission. Each group of deletions
// must equal the record set currently published, otherwise the service
// rejects the whole change with 412.
package clouddns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	dnsapi "google.golang.org/api/dns/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// Provider implements zone.Zone for Google Cloud DNS.
type Provider struct {
	name        string
	project     string
	managedZone string
	service     *dnsapi.Service
	logger      *slog.Logger
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client; it replaces credential handling.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.httpClient = client
	}
}

// New creates a new Cloud DNS zone.
func New(ctx context.Context, name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &providerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []option.ClientOption
	if config.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(strings.TrimSuffix(config.Endpoint, "/")+"/"))
	}
	switch {
	case o.httpClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	case config.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.CredentialsFile))
	}

	service, err := dnsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloud dns service: %w", err)
	}

	return &Provider{
		name:        name,
		project:     config.Project,
		managedZone: config.ManagedZone,
		service:     service,
		logger:      o.logger,
	}, nil
}

// Factory returns a zone.Factory for Cloud DNS zones.
func Factory(logger *slog.Logger) zone.Factory {
	return func(name string, configMap map[string]string) (zone.Zone, error) {
		cfg, err := LoadConfigFromMap(name, configMap)
		if err != nil {
			return nil, err
		}
		return New(context.Background(), name, cfg, WithProviderLogger(logger))
	}
}

// Name returns the zone instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "clouddns".
func (p *Provider) Type() string {
	return "clouddns"
}

// Ping fetches the managed zone.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.service.ManagedZones.Get(p.project, p.managedZone).Context(ctx).Do(); err != nil {
		return p.wrap("ping", err)
	}
	return nil
}

// Records lists the record sets named name and flattens those of the
// requested types into records.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	fqdn := zone.FQDN(name)
	var records []zone.ResourceRecord

	call := p.service.ResourceRecordSets.List(p.project, p.managedZone).Name(fqdn)
	err := call.Pages(ctx, func(page *dnsapi.ResourceRecordSetsListResponse) error {
		for _, rrset := range page.Rrsets {
			recordType := zone.RecordType(rrset.Type)
			if !zone.HasType(types, recordType) {
				continue
			}
			for _, data := range rrset.Rrdatas {
				record, err := zone.NewRecord(recordType, strings.ToLower(rrset.Name), int(rrset.Ttl), data)
				if err != nil {
					// Record sets are replaced whole; a partial set cannot be deleted.
					return fmt.Errorf("record set %s %s: %w", rrset.Name, rrset.Type, err)
				}
				records = append(records, record)
			}
		}
		return nil
	})
	if errors.Is(err, zone.ErrInvalidRecord) {
		return nil, zone.WrapError(p.name, "lookup", err)
	}
	if err != nil {
		return nil, p.wrap("lookup", err)
	}

	p.logger.Debug("listed records",
		slog.String("provider", p.name),
		slog.String("name", fqdn),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// Apply submits the change set as a single Change.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapErrorCode(p.name, "apply", http.StatusBadRequest, err)
	}

	change := &dnsapi.Change{
		Additions: toRRSets(changes.Additions),
		Deletions: toRRSets(changes.Deletions),
	}

	result, err := p.service.Changes.Create(p.project, p.managedZone, change).Context(ctx).Do()
	if err != nil {
		return p.wrap("apply", err)
	}

	p.logger.Info("applied change set",
		slog.String("provider", p.name),
		slog.String("change_id", result.Id),
		slog.String("status", result.Status),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
	)
	return nil
}

// toRRSets groups records by (name, type). The set takes the TTL of its
// first record.
func toRRSets(records []zone.ResourceRecord) []*dnsapi.ResourceRecordSet {
	index := make(map[string]*dnsapi.ResourceRecordSet)
	var keys []string

	for _, r := range records {
		key := strings.ToLower(r.Name) + " " + string(r.Type)
		set, ok := index[key]
		if !ok {
			set = &dnsapi.ResourceRecordSet{
				Name: strings.ToLower(r.Name),
				Type: string(r.Type),
				Ttl:  int64(r.TTL),
			}
			index[key] = set
			keys = append(keys, key)
		}
		set.Rrdatas = append(set.Rrdatas, r.Data)
	}

	sort.Strings(keys)
	sets := make([]*dnsapi.ResourceRecordSet, 0, len(keys))
	for _, key := range keys {
		sets = append(sets, index[key])
	}
	return sets
}

// wrap attaches the zone name, the API status and the matching sentinel.
func (p *Provider) wrap(op string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return zone.WrapError(p.name, op, fmt.Errorf("%w: %w", zone.ErrUnavailable, err))
	}

	switch {
	case apiErr.Code >= 500:
		err = fmt.Errorf("%w: %w", zone.ErrUnavailable, err)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		err = fmt.Errorf("%w: %w", zone.ErrUnauthorized, err)
	case apiErr.Code == http.StatusPreconditionFailed || (apiErr.Code == http.StatusNotFound && op == "apply"):
		err = fmt.Errorf("%w: %w", zone.ErrPrecondition, err)
	}
	return zone.WrapErrorCode(p.name, op, apiErr.Code, err)
}
