// Package config loads hvac-monitor configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. The merged result is validated before use.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// Transport names accepted by Config.Transport.
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// Config is the complete monitor configuration.
type Config struct {
	Transport        string              `koanf:"transport" validate:"oneof=mqtt nats"`
	MQTT             MQTTConfig          `koanf:"mqtt"`
	NATS             NATSConfig          `koanf:"nats"`
	Detection        DetectionConfig     `koanf:"detection"`
	Alerting         AlertingConfig      `koanf:"alerting"`
	Collaborators    CollaboratorsConfig `koanf:"collaborators"`
	Relay            RelayConfig         `koanf:"relay"`
	Server           ServerConfig        `koanf:"server"`
	Logging          LoggingConfig       `koanf:"logging"`
	ReconnectBackoff time.Duration       `koanf:"reconnect_backoff" validate:"gt=0"`
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Broker        string `koanf:"broker" validate:"required"`
	ClientID      string `koanf:"client_id" validate:"required"`
	ReadingsTopic string `koanf:"readings_topic" validate:"required"`
	IncidentTopic string `koanf:"incident_topic"`
	SystemTopic   string `koanf:"system_topic"`
	QoS           byte   `koanf:"qos" validate:"lte=2"`
}

// NATSConfig configures the NATS JetStream transport.
type NATSConfig struct {
	URL        string `koanf:"url"`
	Embedded   bool   `koanf:"embedded"`
	StoreDir   string `koanf:"store_dir"`
	Stream     string `koanf:"stream" validate:"required"`
	Subject    string `koanf:"subject" validate:"required"`
	Durable    string `koanf:"durable" validate:"required"`
	MaxDeliver int    `koanf:"max_deliver" validate:"gte=-1"`
}

// DetectionConfig holds the fault rule thresholds.
type DetectionConfig struct {
	HighTemp         float64       `koanf:"high_temp" validate:"gt=0"`
	HighTempDuration time.Duration `koanf:"high_temp_duration" validate:"gte=1s"`
	ErraticChange    float64       `koanf:"erratic_change" validate:"gt=0"`
	ErraticWindow    time.Duration `koanf:"erratic_window" validate:"gte=1s"`
	SilenceThreshold time.Duration `koanf:"silence_threshold" validate:"gte=1s"`
	SweepInterval    time.Duration `koanf:"sweep_interval" validate:"gte=1s"`
}

// Thresholds converts the configured durations into detector thresholds.
func (d DetectionConfig) Thresholds() logic.Thresholds {
	return logic.Thresholds{
		HighTemp:         d.HighTemp,
		HighTempDuration: int64(d.HighTempDuration / time.Second),
		ErraticChange:    d.ErraticChange,
		ErraticWindow:    int64(d.ErraticWindow / time.Second),
		SilenceThreshold: int64(d.SilenceThreshold / time.Second),
		SweepInterval:    d.SweepInterval,
	}
}

// AlertingConfig configures the status poller and Slack notifier.
type AlertingConfig struct {
	Enabled         bool          `koanf:"enabled"`
	StatusURL       string        `koanf:"status_url" validate:"omitempty,url"`
	PollInterval    time.Duration `koanf:"poll_interval" validate:"gt=0"`
	TempDelta       float64       `koanf:"temp_delta" validate:"gte=0"`
	Reissue         time.Duration `koanf:"reissue" validate:"gte=0"`
	SlackWebhookURL string        `koanf:"slack_webhook_url" validate:"omitempty,url"`
	SlackRate       float64       `koanf:"slack_rate" validate:"gt=0"`
	SlackBurst      int           `koanf:"slack_burst" validate:"gte=1"`
}

// Policy returns the alert suppression policy.
func (a AlertingConfig) Policy() logic.AlertPolicy {
	return logic.AlertPolicy{TempDelta: a.TempDelta, Reissue: a.Reissue}
}

// CollaboratorsConfig configures incident fan-out.
type CollaboratorsConfig struct {
	LoggingURL       string        `koanf:"logging_url" validate:"omitempty,url"`
	AlertingURL      string        `koanf:"alerting_url" validate:"omitempty,url"`
	AutomationURL    string        `koanf:"automation_url" validate:"omitempty,url"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	QueueSize        int           `koanf:"queue_size" validate:"gte=1"`
	BreakerFailures  uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerOpenFor   time.Duration `koanf:"breaker_open_for" validate:"gt=0"`
	PublishIncidents bool          `koanf:"publish_incidents"`
}

// RelayConfig configures the GPIO cooling relay. Pin 0 disables it.
type RelayConfig struct {
	Chip     string        `koanf:"chip"`
	Pin      int           `koanf:"pin" validate:"gte=0"`
	Duration time.Duration `koanf:"duration" validate:"gt=0"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Addr      string `koanf:"addr"`
	SensorURL string `koanf:"sensor_url" validate:"required,url"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Transport == TransportNATS && c.NATS.URL == "" && !c.NATS.Embedded {
		return fmt.Errorf("invalid config: nats.url is required unless nats.embedded is set")
	}
	if c.Alerting.Enabled && c.Alerting.StatusURL == "" {
		return fmt.Errorf("invalid config: alerting.status_url is required when alerting is enabled")
	}
	if c.Detection.ErraticWindow >= c.Detection.SilenceThreshold {
		return fmt.Errorf("invalid config: detection.erratic_window (%v) must be shorter than detection.silence_threshold (%v)",
			c.Detection.ErraticWindow, c.Detection.SilenceThreshold)
	}
	return nil
}
