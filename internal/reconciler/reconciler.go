// Package reconciler replaces the address records of one host in a managed
// zone: it looks up the current records of the requested families and
// submits their deletion together with the new records as one change set.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// DefaultTTL is the TTL of published records.
const DefaultTTL = 300

// Metrics receives one observation per Reconcile call.
type Metrics interface {
	ObserveUpdate(zone, result string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveUpdate(string, string, time.Duration) {}

// Reconciler replaces host records in a zone.
type Reconciler struct {
	ttl     int
	dryRun  bool
	logger  *slog.Logger
	metrics Metrics
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithTTL sets the TTL of the records Reconcile publishes.
func WithTTL(ttl int) Option {
	return func(r *Reconciler) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithDryRun makes Reconcile compute and log the change set without
// submitting it.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) {
		r.dryRun = dryRun
	}
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the TTL of published records.
func (r *Reconciler) TTL() int {
	return r.ttl
}

// Reconcile replaces the records of host with ipv4 and/or ipv6. An invalid
// (zero) address leaves that family untouched: only the requested types are
// looked up, so only they are deleted.
func (r *Reconciler) Reconcile(ctx context.Context, z zone.Zone, host string, ipv4, ipv6 netip.Addr) Outcome {
	start := time.Now()
	outcome := r.reconcile(ctx, z, host, ipv4, ipv6)
	r.metrics.ObserveUpdate(z.Name(), outcome.Result(), time.Since(start))

	if outcome.Err != nil {
		r.logger.WarnContext(ctx, "record update failed",
			slog.String("zone", z.Name()),
			slog.String("host", host),
			slog.String("kind", outcome.Err.Kind.String()),
			slog.Int("code", outcome.Err.Code),
			slog.String("error", outcome.Err.Detail),
		)
		return outcome
	}

	r.logger.InfoContext(ctx, "records updated",
		slog.String("zone", z.Name()),
		slog.String("host", host),
		slog.String("ipv4", addrString(outcome.Values.IPv4)),
		slog.String("ipv6", addrString(outcome.Values.IPv6)),
		slog.Bool("dry_run", r.dryRun),
		slog.Duration("duration", time.Since(start)),
	)
	return outcome
}

func (r *Reconciler) reconcile(ctx context.Context, z zone.Zone, host string, ipv4, ipv6 netip.Addr) Outcome {
	values := Values{Host: host}

	var types []zone.RecordType
	if ipv4 = ipv4.Unmap(); ipv4.Is4() {
		types = append(types, zone.RecordTypeA)
		values.IPv4 = ipv4
	}
	if ipv6.Is6() && !ipv6.Is4In6() {
		types = append(types, zone.RecordTypeAAAA)
		values.IPv6 = ipv6
	}
	if len(types) == 0 {
		return Outcome{Values: values, Err: &Error{
			Kind:   NoAddress,
			Code:   400,
			Title:  "missing ip",
			Detail: "Could not evaluate ip address. Please provide with request.",
			Err:    ErrNoAddress,
		}}
	}

	name := zone.FQDN(host)
	existing, err := z.Records(ctx, name, types...)
	if err != nil {
		return Outcome{Values: values, Err: providerError(err)}
	}
	if len(existing) == 0 {
		return Outcome{Values: values, Err: &Error{
			Kind:   HostNotFound,
			Code:   400,
			Title:  "illegal host",
			Detail: fmt.Sprintf("Host %q not found.", host),
		}}
	}

	changes := zone.ChangeSet{Deletions: existing}
	for _, addr := range []netip.Addr{values.IPv4, values.IPv6} {
		if !addr.IsValid() {
			continue
		}
		record, err := zone.NewRecord(zone.RecordTypeFor(addr), name, r.ttl, addr.String())
		if err != nil {
			return Outcome{Values: values, Err: providerError(err)}
		}
		changes.Additions = append(changes.Additions, record)
	}

	if r.dryRun {
		for _, d := range changes.Deletions {
			r.logger.InfoContext(ctx, "dry run: would delete", slog.String("zone", z.Name()), slog.String("record", d.String()))
		}
		for _, a := range changes.Additions {
			r.logger.InfoContext(ctx, "dry run: would add", slog.String("zone", z.Name()), slog.String("record", a.String()))
		}
		return Outcome{Values: values}
	}

	if err := z.Apply(ctx, changes); err != nil {
		return Outcome{Values: values, Err: providerError(err)}
	}
	return Outcome{Values: values}
}

// providerError maps a zone failure to a client error. The provider's own
// status code is kept when it has one.
func providerError(err error) *Error {
	code := zone.StatusCode(err)
	if code == 0 {
		code = 500
	}
	return &Error{
		Kind:   ProviderError,
		Code:   code,
		Title:  "API error",
		Detail: err.Error(),
		Err:    err,
	}
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
