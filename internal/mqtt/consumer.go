package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// ErrConnectionLost is returned by Consume when the broker connection drops.
var ErrConnectionLost = errors.New("mqtt connection lost")

// Consumer reads sensor readings from the readings topic with manual
// acknowledgement. It uses a persistent session (clean session off, QoS 1) so
// unacknowledged messages are redelivered after a reconnect.
//
// MQTT has no negative acknowledgement, so dispositions map to:
//
//	Ack      PUBACK
//	Reject   PUBACK, message is dropped
//	Requeue  republish the payload to the same topic, then PUBACK
type Consumer struct {
	opts      Options
	connected atomic.Bool
}

// NewConsumer creates a reading consumer. No connection is made until Consume.
func NewConsumer(o Options) *Consumer {
	o = o.withDefaults()
	if o.ClientID == "" {
		o.ClientID = "hvac-monitor-" + uuid.NewString()[:8]
	}
	if o.QoS == 0 {
		o.QoS = 1
	}
	return &Consumer{opts: o}
}

// Name implements queue.Source.
func (c *Consumer) Name() string { return "mqtt" }

// IsConnected reports whether Consume currently holds a broker connection.
func (c *Consumer) IsConnected() bool { return c.connected.Load() }

type delivery struct {
	msg  paho.Message
	done chan struct{}
}

// Consume connects, subscribes and hands each message to h, one at a time,
// until ctx is cancelled (returns nil) or the connection fails (returns error).
// Callbacks still waiting when Consume returns are released without acking,
// so the broker redelivers those messages on the next session.
func (c *Consumer) Consume(ctx context.Context, h queue.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveries := make(chan delivery)
	lost := make(chan error, 1)

	opts := paho.NewClientOptions().
		AddBroker(c.opts.Broker).
		SetClientID(c.opts.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(false).
		SetOrderMatters(false).
		SetAutoAckDisabled(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s: timeout", c.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", c.opts.Broker, err)
	}
	defer func() {
		cancel()
		client.Disconnect(250)
	}()

	sub := client.Subscribe(c.opts.ReadingsTopic, c.opts.QoS, parkDelivery(ctx, deliveries))
	if !sub.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timeout", c.opts.ReadingsTopic)
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.opts.ReadingsTopic, err)
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	logging.Info().Str("broker", c.opts.Broker).Str("topic", c.opts.ReadingsTopic).Msg("mqtt consumer subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		case d := <-deliveries:
			c.settle(client, d.msg, h(ctx, d.msg.Payload()))
			close(d.done)
		}
	}
}

// parkDelivery returns the subscription callback. Callbacks run on their own
// goroutines; each one parks until the Consume loop has settled its message,
// which serializes the handler. Delivery order is not preserved. Once ctx is
// done every parked callback returns.
func parkDelivery(ctx context.Context, deliveries chan<- delivery) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		d := delivery{msg: msg, done: make(chan struct{})}
		select {
		case deliveries <- d:
			select {
			case <-d.done:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}
}

func (c *Consumer) settle(client paho.Client, msg paho.Message, disp queue.Disposition) {
	switch disp {
	case queue.Requeue:
		token := client.Publish(msg.Topic(), c.opts.QoS, false, msg.Payload())
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			// Leave it unacknowledged; the broker redelivers on the next session.
			logging.Error().Err(token.Error()).Uint16("message_id", msg.MessageID()).Msg("mqtt requeue failed, leaving message unacknowledged")
			return
		}
		msg.Ack()
	default:
		msg.Ack()
	}
}
