package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferCapacity = 1000
)

// RealPublisher publishes to an MQTT broker. Messages published while the
// connection is down are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu  sync.Mutex
	buf *queue.Ring[bufferedMsg]
	// set once the buffer has evicted since the last replay
	overflow bool
}

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// NewRealPublisher creates a publisher connected to the configured broker.
// The connection is retried in the background, so a broker that is down at
// startup is not fatal.
func NewRealPublisher(o Options) *RealPublisher {
	o = o.withDefaults()
	p := &RealPublisher{
		opts: o,
		buf:  queue.NewRing[bufferedMsg](bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.SystemTopic, string(willPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			logging.Info().Str("broker", o.Broker).Msg("mqtt publisher connected")
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logging.Warn().Err(err).Str("broker", o.Broker).Msg("mqtt publisher connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// PublishReading sends a reading to the readings topic.
func (p *RealPublisher) PublishReading(r logic.Reading) error {
	payload, err := queue.EncodeReading(r, "normal")
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}
	return p.publish(p.opts.ReadingsTopic, p.opts.QoS, false, payload)
}

// PublishIncident sends an incident to the incident topic.
func (p *RealPublisher) PublishIncident(id string, inc logic.Incident) error {
	payload, err := FormatIncidentPayload(id, inc)
	if err != nil {
		return fmt.Errorf("format incident: %w", err)
	}
	return p.publish(p.opts.IncidentTopic, 1, false, payload)
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.opts.SystemTopic, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, evicted := p.buf.Push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}); evicted && !p.overflow {
			logging.Warn().Int("capacity", p.buf.Cap()).Msg("mqtt offline buffer full, dropping oldest")
			p.overflow = true
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// flush replays buffered messages in order after a (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.buf.Drain()
	p.overflow = false
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	logging.Info().Int("count", len(msgs)).Msg("mqtt replaying buffered messages")
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			logging.Warn().Err(token.Error()).Str("topic", m.topic).Msg("mqtt replay failed")
		}
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// IsConnected reports whether the publisher has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
