// Command sensor-emitter simulates HVAC temperature sensors. It publishes
// readings to the monitor's queue at irregular intervals and serves the
// current reading for the monitor's status check.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/mqtt"
	"github.com/sweeney/hvac-monitor/internal/natsbus"
)

const publishTimeout = 5 * time.Second

func main() {
	transport := flag.String("transport", "mqtt", "Queue transport: mqtt or nats")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	topic := flag.String("topic", mqtt.TopicReadings, "MQTT readings topic")
	natsURL := flag.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	stream := flag.String("stream", "SENSOR_DATA", "JetStream stream name")
	subject := flag.String("subject", "sensor_data", "JetStream readings subject")
	httpAddr := flag.String("http", ":5000", "HTTP address for /reading (empty to disable)")
	fault := flag.String("fault", "", "Fault injection mode: high, erratic or silent")
	target := flag.String("fault-sensor", "sensor-1", "Sensor affected by --fault")
	logLevel := flag.String("log-level", "info", "Log level")

	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console", Timestamp: true})

	gen, err := NewGenerator(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), DefaultSensors, *fault, *target, time.Now)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid flags")
	}

	pub, err := connect(*transport, *broker, *topic, natsbus.StreamOptions{
		URL:     *natsURL,
		Stream:  *stream,
		Subject: *subject,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("connect to queue")
	}
	defer pub.Close()

	if *httpAddr != "" {
		srv := &http.Server{
			Addr:              *httpAddr,
			Handler:           newRouter(gen, pub, time.Now),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logging.Info().Str("addr", *httpAddr).Msg("http server listening")
	}

	logging.Info().
		Str("transport", *transport).
		Str("fault", *fault).
		Strs("sensors", DefaultSensors).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runLoop(gen, pub, time.After, sigCh)
}

// readingPublisher sends readings to the queue.
type readingPublisher interface {
	PublishReading(ctx context.Context, r logic.Reading) error
	IsConnected() bool
	Close() error
}

// mqttReadings adapts an MQTT publisher to readingPublisher.
type mqttReadings struct {
	pub interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	}
}

func (m mqttReadings) PublishReading(_ context.Context, r logic.Reading) error {
	return m.pub.PublishReading(r)
}

func (m mqttReadings) IsConnected() bool { return m.pub.IsConnected() }

func (m mqttReadings) Close() error { return m.pub.Close() }

func connect(transport, broker, topic string, nopts natsbus.StreamOptions) (readingPublisher, error) {
	switch transport {
	case "mqtt":
		return mqttReadings{pub: mqtt.NewRealPublisher(mqtt.Options{
			Broker:        broker,
			ClientID:      "sensor-emitter",
			ReadingsTopic: topic,
			QoS:           1,
		})}, nil
	case "nats":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := natsbus.NewPublisher(ctx, nopts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

// runLoop publishes one reading per wait interval until a signal arrives.
// Publish failures are logged and the loop continues.
func runLoop(gen *Generator, pub readingPublisher, after func(time.Duration) <-chan time.Time, sig <-chan os.Signal) {
	for {
		select {
		case s := <-sig:
			logging.Info().Str("signal", s.String()).Msg("shutting down")
			return
		case <-after(gen.Interval()):
			if _, err := emit(gen, pub); err != nil {
				logging.Warn().Err(err).Msg("publish failed")
			}
		}
	}
}

// emit generates and publishes one reading.
func emit(gen *Generator, pub readingPublisher) (logic.Reading, error) {
	r := gen.Next()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := pub.PublishReading(ctx, r); err != nil {
		return r, fmt.Errorf("publish %s: %w", r.SensorID, err)
	}
	logging.Debug().
		Str("sensor_id", r.SensorID).
		Float64("temperature", r.Temperature).
		Int64("timestamp", r.Timestamp).
		Msg("reading sent")
	return r, nil
}
