package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/hvac-monitor/config.yaml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transport: TransportMQTT,
		MQTT: MQTTConfig{
			Broker:        "tcp://localhost:1883",
			ClientID:      "hvac-monitor",
			ReadingsTopic: "hvac/readings",
			IncidentTopic: "hvac/incidents",
			SystemTopic:   "hvac/monitor/system",
			QoS:           1,
		},
		NATS: NATSConfig{
			URL:        "nats://127.0.0.1:4222",
			Stream:     "SENSOR_DATA",
			Subject:    "sensor_data",
			Durable:    "monitoring-service",
			MaxDeliver: -1,
		},
		Detection: DetectionConfig{
			HighTemp:         80.0,
			HighTempDuration: 5 * time.Minute,
			ErraticChange:    10.0,
			ErraticWindow:    10 * time.Second,
			SilenceThreshold: 2 * time.Minute,
			SweepInterval:    30 * time.Second,
		},
		Alerting: AlertingConfig{
			Enabled:      false,
			StatusURL:    "http://localhost:5001/status",
			PollInterval: 5 * time.Second,
			TempDelta:    1.0,
			Reissue:      60 * time.Second,
			SlackRate:    1,
			SlackBurst:   5,
		},
		Collaborators: CollaboratorsConfig{
			LoggingURL:       "http://localhost:5002",
			AlertingURL:      "http://localhost:5003",
			AutomationURL:    "http://localhost:5004",
			Timeout:          5 * time.Second,
			QueueSize:        256,
			BreakerFailures:  5,
			BreakerOpenFor:   30 * time.Second,
			PublishIncidents: true,
		},
		Relay: RelayConfig{
			Chip:     "gpiochip0",
			Duration: 2 * time.Second,
		},
		Server: ServerConfig{
			Addr:      ":5001",
			SensorURL: "http://localhost:5000/reading",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		ReconnectBackoff: 5 * time.Second,
	}
}

// Load builds the configuration from defaults, the config file and the environment.
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variables to config keys. Unlisted variables
// are ignored so unrelated process environment cannot leak into the config.
var envMappings = map[string]string{
	"transport":                "transport",
	"mqtt_broker":              "mqtt.broker",
	"mqtt_client_id":           "mqtt.client_id",
	"mqtt_readings_topic":      "mqtt.readings_topic",
	"mqtt_incident_topic":      "mqtt.incident_topic",
	"mqtt_system_topic":        "mqtt.system_topic",
	"mqtt_qos":                 "mqtt.qos",
	"nats_url":                 "nats.url",
	"nats_embedded":            "nats.embedded",
	"nats_store_dir":           "nats.store_dir",
	"nats_stream":              "nats.stream",
	"nats_subject":             "nats.subject",
	"nats_durable":             "nats.durable",
	"nats_max_deliver":         "nats.max_deliver",
	"high_temp_threshold":      "detection.high_temp",
	"high_temp_duration":       "detection.high_temp_duration",
	"erratic_change_threshold": "detection.erratic_change",
	"erratic_window":           "detection.erratic_window",
	"sensor_silence_threshold": "detection.silence_threshold",
	"silence_sweep_interval":   "detection.sweep_interval",
	"alerting_enabled":         "alerting.enabled",
	"status_url":               "alerting.status_url",
	"alert_poll_interval":      "alerting.poll_interval",
	"alert_temp_delta":         "alerting.temp_delta",
	"alert_reissue":            "alerting.reissue",
	"slack_webhook_url":        "alerting.slack_webhook_url",
	"logging_service_url":      "collaborators.logging_url",
	"alerting_service_url":     "collaborators.alerting_url",
	"automation_service_url":   "collaborators.automation_url",
	"collaborator_timeout":     "collaborators.timeout",
	"dispatch_queue_size":      "collaborators.queue_size",
	"publish_incidents":        "collaborators.publish_incidents",
	"relay_chip":               "relay.chip",
	"relay_pin":                "relay.pin",
	"relay_duration":           "relay.duration",
	"http_addr":                "server.addr",
	"sensor_url":               "server.sensor_url",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
	"reconnect_backoff":        "reconnect_backoff",
}

// envTransformFunc maps an environment variable name to a config key,
// returning "" for variables that are not configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
