// Package status provides a thread-safe status tracker for the hvac-monitor daemon.
// It is read by the HTTP handlers and by the lifecycle events published to MQTT.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// SensorSource exposes detection state. Implemented by *logic.Store.
type SensorSource interface {
	Summaries() []logic.SensorSummary
	Counts() logic.IncidentCounts
}

// ConnectionStatus reports whether the reading source is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// DispatchStats is a point-in-time view of incident fan-out.
type DispatchStats struct {
	Queued   int
	Dropped  int64
	Breakers map[string]string // collaborator name -> breaker state
}

// DispatchSource exposes dispatch state. Implemented by *dispatch.Dispatcher.
type DispatchSource interface {
	Stats() DispatchStats
}

// Config contains daemon configuration for display.
type Config struct {
	Transport         string
	Source            string // broker or server URL
	HighTemp          float64
	HighTempDurationS int64
	ErraticChange     float64
	ErraticWindowS    int64
	SilenceThresholdS int64
	SweepIntervalS    int64
	HTTPAddr          string
}

// ReadingCounts counts consumed messages by outcome.
type ReadingCounts struct {
	Accepted int64
	Rejected int64
	Requeued int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Sensors         []logic.SensorSummary
	Incidents       logic.IncidentCounts
	Readings        ReadingCounts
	SourceConnected bool
	LastSweep       time.Time
	Dispatch        DispatchStats
	StartTime       time.Time
	Now             time.Time
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	sensors  SensorSource
	conn     ConnectionStatus
	dispatch DispatchSource
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Attach wires the live sources that Snapshot reads from. Nil sources are skipped.
func (t *Tracker) Attach(sensors SensorSource, conn ConnectionStatus, dispatch DispatchSource) {
	t.mu.Lock()
	t.sensors = sensors
	t.conn = conn
	t.dispatch = dispatch
	t.mu.Unlock()
}

// RecordReading counts one consumed message by its disposition.
func (t *Tracker) RecordReading(d queue.Disposition) {
	t.mu.Lock()
	switch d {
	case queue.Ack:
		t.snap.Readings.Accepted++
	case queue.Reject:
		t.snap.Readings.Rejected++
	case queue.Requeue:
		t.snap.Readings.Requeued++
	}
	t.mu.Unlock()
}

// SetLastSweep records when the silence sweeper last ran.
func (t *Tracker) SetLastSweep(at time.Time) {
	t.mu.Lock()
	t.snap.LastSweep = at
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	sensors, conn, dispatch := t.sensors, t.conn, t.dispatch
	t.mu.RUnlock()

	if sensors != nil {
		s.Sensors = sensors.Summaries()
		s.Incidents = sensors.Counts()
	}
	if conn != nil {
		s.SourceConnected = conn.IsConnected()
	}
	if dispatch != nil {
		s.Dispatch = dispatch.Stats()
	}
	s.Now = time.Now()
	return s
}
