package dnsupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Sentinel errors for RFC 2136 operations.
var (
	// ErrUpdateFailed is returned when the server rejects an UPDATE.
	ErrUpdateFailed = errors.New("dns update failed")

	// ErrPrerequisite is returned when the records to delete no longer match
	// the zone (NXRRSET/YXRRSET).
	ErrPrerequisite = errors.New("update prerequisite not satisfied")

	// ErrAuthenticationFailed is returned when TSIG authentication fails.
	ErrAuthenticationFailed = errors.New("tsig authentication failed")

	// ErrRefused is returned when the server policy refuses the update.
	ErrRefused = errors.New("update refused")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("connection to dns server failed")

	// ErrZoneMismatch is returned when a record name is outside the zone.
	ErrZoneMismatch = errors.New("record name does not match configured zone")
)

// Client handles RFC 2136 dynamic updates for one zone.
type Client struct {
	config    *Config
	tsig      *TSIG
	logger    *slog.Logger
	dnsClient *dns.Client

	mu         sync.Mutex
	lastUpdate time.Time
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the DNS update client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new RFC 2136 client.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tsig, err := tsigFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TSIG configuration: %w", err)
	}

	c := &Client{
		config: config,
		tsig:   tsig,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.dnsClient = &dns.Client{
		Net:     "udp",
		Timeout: config.GetTimeout(),
	}
	if config.UseTCP {
		c.dnsClient.Net = "tcp"
	}
	tsig.applyToClient(c.dnsClient)

	c.logger.Debug("RFC 2136 client initialized",
		slog.String("server", config.GetServer()),
		slog.String("zone", config.Zone),
		slog.Bool("tsig", tsig != nil),
		slog.Bool("tcp", config.UseTCP),
	)

	return c, nil
}

// Zone returns the configured zone name.
func (c *Client) Zone() string {
	return c.config.Zone
}

// Server returns the configured server address.
func (c *Client) Server() string {
	return c.config.GetServer()
}

// LastUpdate returns the time of the last successful update.
func (c *Client) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate
}

// Ping verifies the server is authoritative for the zone by querying its SOA.
func (c *Client) Ping(ctx context.Context) error {
	msg := new(dns.Msg)
	msg.SetQuestion(c.config.Zone, dns.TypeSOA)
	msg.RecursionDesired = false

	resp, rtt, err := c.exchange(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("%w: server returned %s", ErrConnectionFailed, dns.RcodeToString[resp.Rcode])
	}

	c.logger.Debug("DNS server ping successful",
		slog.String("zone", c.config.Zone),
		slog.Duration("rtt", rtt),
	)
	return nil
}

// Query returns the records of recordType owned by exactly name.
// NXDOMAIN yields an empty result.
func (c *Client) Query(ctx context.Context, name string, recordType uint16) ([]Record, error) {
	fqdn := dns.Fqdn(name)
	if !c.isInZone(fqdn) {
		return nil, fmt.Errorf("%w: %s not in zone %s", ErrZoneMismatch, fqdn, c.config.Zone)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, recordType)
	msg.RecursionDesired = false

	resp, _, err := c.exchange(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []Record{}, nil
	default:
		return nil, fmt.Errorf("dns query returned %s", dns.RcodeToString[resp.Rcode])
	}

	records := make([]Record, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		header := rr.Header()
		if header.Rrtype != recordType || !strings.EqualFold(header.Name, fqdn) {
			continue
		}
		record, err := RecordFromRR(rr)
		if err != nil {
			c.logger.Warn("failed to parse DNS record",
				slog.String("error", err.Error()),
				slog.String("rr", rr.String()),
			)
			continue
		}
		records = append(records, record)
	}

	c.logger.Debug("DNS query complete",
		slog.String("name", fqdn),
		slog.String("type", dns.TypeToString[recordType]),
		slog.Int("count", len(records)),
	)

	return records, nil
}

// Apply removes and inserts records in one UPDATE message. Each record set
// being removed is also stated as a value-dependent prerequisite, so the
// server refuses the whole message if the zone changed since the lookup.
func (c *Client) Apply(ctx context.Context, remove, insert []Record) error {
	if len(remove) == 0 && len(insert) == 0 {
		return nil
	}

	for _, r := range append(append([]Record{}, remove...), insert...) {
		if fqdn := dns.Fqdn(r.Name); !c.isInZone(fqdn) {
			return fmt.Errorf("%w: %s not in zone %s", ErrZoneMismatch, fqdn, c.config.Zone)
		}
	}

	// The update helpers rewrite headers in place, so each section gets
	// its own copies.
	prereqs, err := toRRs(remove)
	if err != nil {
		return err
	}
	deletions, err := toRRs(remove)
	if err != nil {
		return err
	}
	additions, err := toRRs(insert)
	if err != nil {
		return err
	}

	msg := new(dns.Msg)
	msg.SetUpdate(c.config.Zone)
	if len(prereqs) > 0 {
		msg.Used(prereqs)
		msg.Remove(deletions)
	}
	if len(additions) > 0 {
		msg.Insert(additions)
	}
	c.tsig.sign(msg)

	c.logger.Debug("sending DNS update",
		slog.String("zone", c.config.Zone),
		slog.Int("remove", len(deletions)),
		slog.Int("insert", len(additions)),
	)

	resp, _, err := c.exchange(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := checkResponse(resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastUpdate = time.Now()
	c.mu.Unlock()

	c.logger.Info("DNS update applied",
		slog.String("zone", c.config.Zone),
		slog.Int("removed", len(deletions)),
		slog.Int("inserted", len(additions)),
	)
	return nil
}

func (c *Client) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	resp, rtt, err := c.dnsClient.ExchangeContext(ctx, msg, c.config.GetServer())
	if err != nil {
		return nil, rtt, err
	}
	if resp == nil {
		return nil, rtt, errors.New("no response from server")
	}
	return resp, rtt, nil
}

// checkResponse maps an UPDATE rcode to an error.
func checkResponse(resp *dns.Msg) error {
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return nil

	case dns.RcodeNXRrset, dns.RcodeYXRrset, dns.RcodeNameError, dns.RcodeYXDomain:
		return fmt.Errorf("%w: %s", ErrPrerequisite, dns.RcodeToString[resp.Rcode])

	case dns.RcodeNotAuth:
		if resp.IsTsig() != nil {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, dns.RcodeToString[resp.Rcode])
		}
		return fmt.Errorf("%w: server not authoritative for zone", ErrUpdateFailed)

	case dns.RcodeRefused:
		return fmt.Errorf("%w: check server policy or TSIG configuration", ErrRefused)

	case dns.RcodeNotZone:
		return ErrZoneMismatch

	default:
		return fmt.Errorf("%w: %s", ErrUpdateFailed, dns.RcodeToString[resp.Rcode])
	}
}

func (c *Client) isInZone(fqdn string) bool {
	return dns.IsSubDomain(c.config.Zone, fqdn)
}

// IsNetworkError checks if an error is a network-related error.
func IsNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
