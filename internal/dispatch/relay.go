package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/hvac-monitor/internal/gpio"
	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
)

// RelayRemediator energizes a cooling relay when a High Temperature incident
// arrives and releases it after a fixed duration. Another High Temperature
// incident while the relay is on extends the hold.
type RelayRemediator struct {
	relay    gpio.Relay
	duration time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewRelayRemediator creates a remediator driving relay for duration per incident.
func NewRelayRemediator(relay gpio.Relay, duration time.Duration) *RelayRemediator {
	return &RelayRemediator{relay: relay, duration: duration}
}

func (r *RelayRemediator) Name() string { return "cooling-relay" }

func (r *RelayRemediator) Deliver(_ context.Context, job Job) error {
	if job.Incident.Type != logic.IncidentHighTemperature {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.relay.Set(true); err != nil {
		return fmt.Errorf("energize cooling relay: %w", err)
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.duration, func() { r.release(gen) })

	logging.Info().
		Str("sensor_id", job.Incident.SensorID).
		Dur("duration", r.duration).
		Msg("cooling applied")
	return nil
}

func (r *RelayRemediator) release(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	r.timer = nil
	if err := r.relay.Set(false); err != nil {
		logging.Error().Err(err).Msg("failed to release cooling relay")
	}
}

// Close stops any pending release and closes the relay, leaving it off.
func (r *RelayRemediator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
	return r.relay.Close()
}
