package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// Consumer reads sensor readings from a durable JetStream pull consumer.
// Dispositions map directly to JetStream acknowledgements:
//
//	Ack      Ack
//	Reject   Term (never redelivered)
//	Requeue  Nak (redelivered)
type Consumer struct {
	opts      StreamOptions
	connected atomic.Bool
}

// NewConsumer creates a reading consumer. No connection is made until Consume.
func NewConsumer(o StreamOptions) *Consumer {
	if o.MaxDeliver == 0 {
		o.MaxDeliver = -1
	}
	return &Consumer{opts: o}
}

// Name implements queue.Source.
func (c *Consumer) Name() string { return "nats" }

// IsConnected reports whether Consume currently holds a server connection.
func (c *Consumer) IsConnected() bool { return c.connected.Load() }

// Consume connects and hands each message to h, one at a time, until ctx is
// cancelled (returns nil) or the connection fails (returns error).
func (c *Consumer) Consume(ctx context.Context, h queue.Handler) error {
	closed := make(chan struct{})
	nc, err := nats.Connect(c.opts.URL,
		nats.Name("hvac-monitor"),
		nats.NoReconnect(),
		nats.Timeout(5*time.Second),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.opts.URL, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js, c.opts); err != nil {
		return err
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, c.opts.Stream, jetstream.ConsumerConfig{
		Durable:       c.opts.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.opts.Subject,
		MaxDeliver:    c.opts.MaxDeliver,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.opts.Durable, err)
	}

	iter, err := cons.Messages()
	if err != nil {
		return fmt.Errorf("start message iterator: %w", err)
	}

	quit := make(chan struct{})
	defer close(quit)
	go func() {
		select {
		case <-ctx.Done():
		case <-closed:
		case <-quit:
		}
		iter.Stop()
	}()

	c.connected.Store(true)
	defer c.connected.Store(false)
	logging.Info().Str("url", c.opts.URL).Str("stream", c.opts.Stream).Str("durable", c.opts.Durable).Msg("nats consumer started")

	for {
		msg, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return fmt.Errorf("nats connection closed")
			}
			return fmt.Errorf("next message: %w", err)
		}
		c.settle(msg, h(ctx, msg.Data()))
	}
}

func (c *Consumer) settle(msg jetstream.Msg, disp queue.Disposition) {
	var err error
	switch disp {
	case queue.Reject:
		err = msg.Term()
	case queue.Requeue:
		err = msg.Nak()
	default:
		err = msg.Ack()
	}
	if err != nil {
		logging.Warn().Err(err).Str("disposition", disp.String()).Msg("nats acknowledgement failed")
	}
}
