package audit

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// DefaultStream is the stream events are appended to.
const DefaultStream = "dynhost:updates"

// RedisSink appends events to a Redis stream with XADD.
type RedisSink struct {
	client rueidis.Client
	stream string
}

// NewRedisSink connects to addr and checks the connection.
func NewRedisSink(ctx context.Context, addr string, db int, stream string) (*RedisSink, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		SelectDB:     db,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	sink := NewRedisSinkFromClient(client, stream)
	if err := sink.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return sink, nil
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client rueidis.Client, stream string) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream}
}

// Record appends e to the stream.
func (s *RedisSink) Record(ctx context.Context, e Event) error {
	cmd := s.client.B().Xadd().Key(s.stream).Id("*").FieldValue()
	fields := e.Fields()
	for i := 0; i+1 < len(fields); i += 2 {
		cmd = cmd.FieldValue(fields[i], fields[i+1])
	}
	if err := s.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("audit XADD %s: %w", s.stream, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() {
	s.client.Close()
}
