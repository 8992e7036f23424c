package dispatch

import (
	"context"

	"github.com/sweeney/hvac-monitor/internal/mqtt"
)

// IncidentPublisher publishes incidents on the MQTT incident topic.
type IncidentPublisher struct {
	pub mqtt.Publisher
}

// NewIncidentPublisher wraps an MQTT publisher as a collaborator.
func NewIncidentPublisher(pub mqtt.Publisher) *IncidentPublisher {
	return &IncidentPublisher{pub: pub}
}

func (p *IncidentPublisher) Name() string { return "mqtt-incidents" }

// Deliver publishes the incident keyed by the job ID. The real publisher
// buffers while disconnected, so ctx is not consulted.
func (p *IncidentPublisher) Deliver(_ context.Context, job Job) error {
	return p.pub.PublishIncident(job.ID, job.Incident)
}
