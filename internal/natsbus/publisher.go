package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// Publisher publishes readings to the JetStream readings subject.
type Publisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects and ensures the readings stream exists.
func NewPublisher(ctx context.Context, o StreamOptions) (*Publisher, error) {
	nc, err := nats.Connect(o.URL,
		nats.Name("sensor-emitter"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", o.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js, o); err != nil {
		nc.Close()
		return nil, err
	}

	return &Publisher{nc: nc, js: js, subject: o.Subject}, nil
}

// PublishReading publishes a reading and waits for the stream acknowledgement.
func (p *Publisher) PublishReading(ctx context.Context, r logic.Reading) error {
	payload, err := queue.EncodeReading(r, "normal")
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}
	return p.PublishRaw(ctx, payload)
}

// PublishRaw publishes an already encoded payload.
func (p *Publisher) PublishRaw(ctx context.Context, payload []byte) error {
	if _, err := p.js.Publish(ctx, p.subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// IsConnected reports whether the connection is up.
func (p *Publisher) IsConnected() bool {
	return p.nc.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
