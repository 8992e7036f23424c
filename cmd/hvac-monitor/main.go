// Command hvac-monitor consumes sensor readings, detects HVAC faults and
// fans incidents out to the logging, alerting and automation collaborators.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sweeney/hvac-monitor/internal/config"
	"github.com/sweeney/hvac-monitor/internal/dispatch"
	"github.com/sweeney/hvac-monitor/internal/gpio"
	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/monitor"
	"github.com/sweeney/hvac-monitor/internal/mqtt"
	"github.com/sweeney/hvac-monitor/internal/natsbus"
	"github.com/sweeney/hvac-monitor/internal/queue"
	"github.com/sweeney/hvac-monitor/internal/status"
	"github.com/sweeney/hvac-monitor/internal/supervisor"
	"github.com/sweeney/hvac-monitor/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config) error {
	startTime := time.Now()

	// Embedded NATS must be up before the consumer connects.
	if cfg.Transport == config.TransportNATS && cfg.NATS.Embedded {
		ns, err := natsbus.NewEmbeddedServer(embeddedServerOptions(cfg.NATS))
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ns.Shutdown(ctx)
		}()
		cfg.NATS.URL = ns.ClientURL()
		logging.Info().Str("url", cfg.NATS.URL).Msg("embedded nats server started")
	}

	store := logic.NewStore()
	thresholds := cfg.Detection.Thresholds()
	engine := logic.NewEngine(store, thresholds)
	sweeper := logic.NewSweeper(store, thresholds)

	tracker := status.NewTracker(startTime, statusConfig(cfg))

	// Lifecycle events and the incident topic are MQTT only; with the NATS
	// transport publisher stays nil and both are skipped.
	var publisher mqtt.Publisher
	if cfg.Transport == config.TransportMQTT {
		publisher = mqtt.NewRealPublisher(mqttOptions(cfg.MQTT, cfg.MQTT.ClientID+"-pub"))
		defer publisher.Close()
	}

	var relay *dispatch.RelayRemediator
	if cfg.Relay.Pin > 0 {
		r, err := gpio.NewRealRelay(cfg.Relay.Chip, cfg.Relay.Pin)
		if err != nil {
			return fmt.Errorf("init cooling relay: %w", err)
		}
		relay = dispatch.NewRelayRemediator(r, cfg.Relay.Duration)
		defer relay.Close()
	}

	dispatcher := dispatch.New(dispatch.Options{
		QueueSize:       cfg.Collaborators.QueueSize,
		Timeout:         cfg.Collaborators.Timeout,
		BreakerFailures: cfg.Collaborators.BreakerFailures,
		BreakerOpenFor:  cfg.Collaborators.BreakerOpenFor,
	}, buildCollaborators(cfg.Collaborators, publisher, relay)...)

	source := buildSource(cfg)
	tracker.Attach(store, source, dispatcher)
	processor := monitor.NewProcessor(engine, dispatcher, tracker)

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(monitor.NewConsumerService(source, processor.Handle, cfg.ReconnectBackoff))
	tree.AddMessagingService(dispatcher)
	tree.AddDetectionService(monitor.NewSweeperService(sweeper, dispatcher, tracker))

	if cfg.Alerting.Enabled {
		slack := dispatch.NewSlackNotifier(cfg.Alerting.SlackWebhookURL, cfg.Alerting.SlackRate, cfg.Alerting.SlackBurst, nil)
		gate := logic.NewAlertGate(cfg.Alerting.Policy())
		tree.AddDetectionService(monitor.NewAlertPoller(cfg.Alerting.StatusURL, cfg.Alerting.PollInterval, gate, slack, nil))
	}

	if cfg.Server.Addr != "" {
		checker := monitor.NewStatusChecker(cfg.Server.SensorURL, nil)
		tree.AddAPIService(web.New(cfg.Server.Addr, tracker, checker))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("http status server enabled")
	}

	publishLifecycle(publisher, tracker, "STARTUP", "")

	logging.Info().
		Str("transport", cfg.Transport).
		Str("source", statusConfig(cfg).Source).
		Float64("high_temp", cfg.Detection.HighTemp).
		Dur("sweep_interval", cfg.Detection.SweepInterval).
		Int("collaborators", len(dispatcher.Stats().Breakers)).
		Msg("started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	treeErr := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason, err := awaitShutdown(sigCh, treeErr)
	publishLifecycle(publisher, tracker, "SHUTDOWN", reason)
	cancel()
	if reason != "" {
		<-treeErr
	}
	return err
}

// awaitShutdown blocks until a signal arrives or the tree stops on its own.
// It returns the signal name, or the tree's error.
func awaitShutdown(sig <-chan os.Signal, treeErr <-chan error) (string, error) {
	select {
	case s := <-sig:
		name := signalName(s)
		logging.Info().Str("signal", name).Msg("shutting down")
		return name, nil
	case err := <-treeErr:
		if err != nil {
			return "", fmt.Errorf("supervisor stopped: %w", err)
		}
		return "", nil
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// publishLifecycle sends a retained STARTUP or SHUTDOWN event carrying a
// status snapshot. Publish failures are logged and otherwise ignored.
func publishLifecycle(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	if publisher == nil {
		return
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	logging.Info().Str("event", event).Msg("published system event")
}

// buildCollaborators returns the incident fan-out targets. Empty URLs
// disable the matching HTTP collaborator.
func buildCollaborators(c config.CollaboratorsConfig, publisher mqtt.Publisher, relay *dispatch.RelayRemediator) []dispatch.Collaborator {
	var out []dispatch.Collaborator
	if c.LoggingURL != "" {
		out = append(out, dispatch.NewIncidentSink(c.LoggingURL, nil))
	}
	if c.AlertingURL != "" {
		out = append(out, dispatch.NewNotifier(c.AlertingURL, nil))
	}
	if c.AutomationURL != "" {
		out = append(out, dispatch.NewRemediator(c.AutomationURL, nil))
	}
	if c.PublishIncidents && publisher != nil {
		out = append(out, dispatch.NewIncidentPublisher(publisher))
	}
	if relay != nil {
		out = append(out, relay)
	}
	return out
}

// source is a reading source that also reports connectivity.
type source interface {
	queue.Source
	status.ConnectionStatus
}

func buildSource(cfg *config.Config) source {
	if cfg.Transport == config.TransportNATS {
		return natsbus.NewConsumer(natsbus.StreamOptions{
			URL:        cfg.NATS.URL,
			Stream:     cfg.NATS.Stream,
			Subject:    cfg.NATS.Subject,
			Durable:    cfg.NATS.Durable,
			MaxDeliver: cfg.NATS.MaxDeliver,
		})
	}
	return mqtt.NewConsumer(mqttOptions(cfg.MQTT, cfg.MQTT.ClientID))
}

func mqttOptions(c config.MQTTConfig, clientID string) mqtt.Options {
	return mqtt.Options{
		Broker:        c.Broker,
		ClientID:      clientID,
		ReadingsTopic: c.ReadingsTopic,
		IncidentTopic: c.IncidentTopic,
		SystemTopic:   c.SystemTopic,
		QoS:           c.QoS,
	}
}

func statusConfig(cfg *config.Config) status.Config {
	src := cfg.MQTT.Broker
	if cfg.Transport == config.TransportNATS {
		src = cfg.NATS.URL
	}
	d := cfg.Detection
	return status.Config{
		Transport:         cfg.Transport,
		Source:            src,
		HighTemp:          d.HighTemp,
		HighTempDurationS: int64(d.HighTempDuration / time.Second),
		ErraticChange:     d.ErraticChange,
		ErraticWindowS:    int64(d.ErraticWindow / time.Second),
		SilenceThresholdS: int64(d.SilenceThreshold / time.Second),
		SweepIntervalS:    int64(d.SweepInterval / time.Second),
		HTTPAddr:          cfg.Server.Addr,
	}
}

// embeddedServerOptions listens on the host and port of nats.url, or a
// random local port when the URL has none.
func embeddedServerOptions(c config.NATSConfig) natsbus.ServerOptions {
	opts := natsbus.ServerOptions{Host: "127.0.0.1", Port: -1, StoreDir: c.StoreDir}
	u, err := url.Parse(c.URL)
	if err != nil || c.URL == "" {
		return opts
	}
	if h := u.Hostname(); h != "" {
		opts.Host = h
	}
	if p, err := strconv.Atoi(u.Port()); err == nil {
		opts.Port = p
	}
	return opts
}
