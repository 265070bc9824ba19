// Package dispatcher runs one update: it starts the portal session for a new
// IPv4 address in the background and answers from the record update alone.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/dynhost/internal/audit"
	"gitlab.bluewillows.net/root/dynhost/internal/logging"
	"gitlab.bluewillows.net/root/dynhost/internal/portal"
	"gitlab.bluewillows.net/root/dynhost/internal/reconciler"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// ZoneResolver finds the zone an update targets.
type ZoneResolver interface {
	Resolve(name string) (zone.Zone, error)
}

// RecordReconciler replaces host records in a zone.
type RecordReconciler interface {
	Reconcile(ctx context.Context, z zone.Zone, host string, ipv4, ipv6 netip.Addr) reconciler.Outcome
}

// EndpointPropagator moves the tunnel endpoint to a new IPv4 address.
type EndpointPropagator interface {
	PropagateEndpoint(ctx context.Context, ipv4 netip.Addr) portal.Outcome
}

// Metrics receives per-request and per-session observations.
type Metrics interface {
	ObservePortal(step, result string)
	ObserveRequest(code int)
}

type nopMetrics struct{}

func (nopMetrics) ObservePortal(string, string) {}
func (nopMetrics) ObserveRequest(int)           {}

// Params is one validated update request. An invalid address means the
// family is not being updated.
type Params struct {
	Host string
	Zone string
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// Dispatcher coordinates the record update and the portal session.
type Dispatcher struct {
	zones   ZoneResolver
	records RecordReconciler
	portal  EndpointPropagator
	audit   audit.Sink
	metrics Metrics
	logger  *slog.Logger

	sessions sync.WaitGroup
}

// Option is a functional option for configuring the Dispatcher.
type Option func(*Dispatcher)

// WithPortal enables the portal session for updates carrying IPv4.
func WithPortal(p EndpointPropagator) Option {
	return func(d *Dispatcher) {
		d.portal = p
	}
}

// WithAudit sets the audit sink. The default logs events.
func WithAudit(s audit.Sink) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.audit = s
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher.
func New(zones ZoneResolver, records RecordReconciler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		zones:   zones,
		records: records,
		metrics: nopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.audit == nil {
		d.audit = audit.NewLogSink(d.logger)
	}
	return d
}

// Handle runs one update. The response comes from the record update only;
// the portal session, when started, outlives the call and ctx.
func (d *Dispatcher) Handle(ctx context.Context, p Params) Response {
	if logging.RequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, uuid.NewString())
	}

	d.logger.InfoContext(ctx, "update requested",
		slog.String("zone", p.Zone),
		slog.String("host", p.Host),
		slog.String("ipv4", addrString(p.IPv4)),
		slog.String("ipv6", addrString(p.IPv6)),
	)

	if d.portal != nil && p.IPv4.Unmap().Is4() {
		d.startPortal(ctx, p.IPv4.Unmap())
	}

	resp := d.updateRecords(ctx, p)
	d.metrics.ObserveRequest(resp.Status())
	return resp
}

func (d *Dispatcher) updateRecords(ctx context.Context, p Params) Response {
	event := audit.Event{
		Time:      time.Now(),
		RequestID: logging.RequestID(ctx),
		Operation: audit.OperationRecords,
		Zone:      p.Zone,
		Host:      p.Host,
		IPv4:      addrString(p.IPv4),
		IPv6:      addrString(p.IPv6),
	}

	z, err := d.zones.Resolve(p.Zone)
	if err != nil {
		resp := Failure(400, "illegal zone", fmt.Sprintf("Zone %q is not managed", p.Zone))
		event.Result, event.Code, event.Error = "unknown_zone", resp.Code, err.Error()
		d.record(ctx, event)
		d.logger.WarnContext(ctx, "update rejected", slog.String("zone", p.Zone), slog.String("error", err.Error()))
		return resp
	}

	outcome := d.records.Reconcile(ctx, z, p.Host, p.IPv4, p.IPv6)
	event.Result = outcome.Result()

	var resp Response
	if outcome.Err != nil {
		resp = Failure(outcome.Err.Code, outcome.Err.Title, outcome.Err.Detail)
		event.Error = outcome.Err.Detail
	} else {
		resp = Success(Values{
			Host: outcome.Values.Host,
			IPv4: addrString(outcome.Values.IPv4),
			IPv6: addrString(outcome.Values.IPv6),
		})
	}
	event.Code = resp.Code
	d.record(ctx, event)
	return resp
}

// startPortal runs the portal session detached from ctx's cancellation. The
// request id stays on the context.
func (d *Dispatcher) startPortal(ctx context.Context, ipv4 netip.Addr) {
	detached := context.WithoutCancel(ctx)

	d.sessions.Add(1)
	go func() {
		defer d.sessions.Done()

		outcome := d.portal.PropagateEndpoint(detached, ipv4)

		event := audit.Event{
			Time:      time.Now(),
			RequestID: logging.RequestID(detached),
			Operation: audit.OperationPortal,
			IPv4:      ipv4.String(),
			Step:      outcome.Step.String(),
			Result:    portalResult(outcome),
		}
		if outcome.Err != nil {
			event.Error = outcome.Err.Error()
			d.logger.ErrorContext(detached, "portal update failed",
				slog.String("step", outcome.Step.String()),
				slog.String("error", outcome.Err.Error()),
			)
		}
		d.metrics.ObservePortal(event.Step, event.Result)
		d.record(detached, event)
	}()
}

// Wait blocks until every detached portal session has finished.
func (d *Dispatcher) Wait() {
	d.sessions.Wait()
}

// Drain waits for detached portal sessions until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) record(ctx context.Context, e audit.Event) {
	if err := d.audit.Record(ctx, e); err != nil {
		d.logger.WarnContext(ctx, "audit record failed",
			slog.String("operation", e.Operation),
			slog.String("error", err.Error()),
		)
	}
}

func portalResult(o portal.Outcome) string {
	if o.Err == nil {
		return "success"
	}
	var se *portal.StepError
	if errors.As(o.Err, &se) {
		return se.Kind.String()
	}
	return "error"
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
