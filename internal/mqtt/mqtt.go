// Package mqtt provides the MQTT transport: a manual-ack reading consumer and
// publishers for readings, incidents and system lifecycle events.
package mqtt

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// Default topics.
const (
	TopicReadings  = "hvac/readings"
	TopicIncidents = "hvac/incidents"
	TopicSystem    = "hvac/monitor/system"
)

// Options configures a broker connection.
type Options struct {
	Broker        string
	ClientID      string
	ReadingsTopic string
	IncidentTopic string
	SystemTopic   string
	QoS           byte
}

func (o Options) withDefaults() Options {
	if o.ReadingsTopic == "" {
		o.ReadingsTopic = TopicReadings
	}
	if o.IncidentTopic == "" {
		o.IncidentTopic = TopicIncidents
	}
	if o.SystemTopic == "" {
		o.SystemTopic = TopicSystem
	}
	return o
}

// Publisher publishes readings, incidents and system events.
type Publisher interface {
	// PublishReading sends a sensor reading to the readings topic.
	PublishReading(r logic.Reading) error

	// PublishIncident sends a detected incident to the incident topic.
	PublishIncident(id string, inc logic.Incident) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (STARTUP, SHUTDOWN, OFFLINE).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only
	RawPayload []byte // pre-formatted payload; returned as-is by FormatSystemPayload
	Retained   bool
}

// IncidentPayload is the MQTT message for a detected incident.
type IncidentPayload struct {
	Incident IncidentBody `json:"incident"`
}

// IncidentBody contains the incident details.
type IncidentBody struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	SensorID   string         `json:"sensor_id"`
	Value      *float64       `json:"value"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details"`
	DetectedAt string         `json:"detected_at"`
	Runbook    string         `json:"runbook,omitempty"`
}

// FormatIncidentPayload creates the JSON payload for an incident.
func FormatIncidentPayload(id string, inc logic.Incident) ([]byte, error) {
	details := inc.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(IncidentPayload{
		Incident: IncidentBody{
			ID:         id,
			Type:       string(inc.Type),
			SensorID:   inc.SensorID,
			Value:      inc.Value,
			Severity:   inc.Severity,
			Details:    details,
			DetectedAt: time.Unix(inc.DetectedAt, 0).UTC().Format(time.RFC3339),
			Runbook:    inc.Type.Runbook(),
		},
	})
}

// SystemPayload is the payload for simple system events that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// willPayload is registered as the last-will message so subscribers learn
// when the monitor drops off without a clean shutdown.
func willPayload() []byte {
	b, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"},
	})
	return b
}
