// Package audit records the outcome of every update. Events go to the log
// and, when configured, to a Redis stream.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// Operations recorded.
const (
	OperationRecords = "records"
	OperationPortal  = "portal"
)

// Event is one recorded outcome. Records and portal outcomes of the same
// request are separate events sharing RequestID.
type Event struct {
	Time      time.Time
	RequestID string
	Operation string
	Zone      string
	Host      string
	IPv4      string
	IPv6      string
	Result    string
	Code      int    // records only
	Step      string // portal only
	Error     string
}

// Fields returns the event as ordered field/value pairs. Empty fields are
// left out.
func (e Event) Fields() []string {
	fields := []string{
		"time", e.Time.UTC().Format(time.RFC3339Nano),
		"operation", e.Operation,
		"result", e.Result,
	}
	add := func(k, v string) {
		if v != "" {
			fields = append(fields, k, v)
		}
	}
	add("request_id", e.RequestID)
	add("zone", e.Zone)
	add("host", e.Host)
	add("ipv4", e.IPv4)
	add("ipv6", e.IPv6)
	if e.Code != 0 {
		add("code", strconv.Itoa(e.Code))
	}
	add("step", e.Step)
	add("error", e.Error)
	return fields
}

// Sink stores events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes events as log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs e at info level, or warn when it failed.
func (s *LogSink) Record(ctx context.Context, e Event) error {
	fields := e.Fields()
	attrs := make([]slog.Attr, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == "time" || fields[i] == "request_id" {
			continue
		}
		attrs = append(attrs, slog.String(fields[i], fields[i+1]))
	}

	level := slog.LevelInfo
	if e.Error != "" {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// Multi records every event in each sink and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
