package logic

import (
	"math"
	"sync"
	"time"
)

// StatusState is the comfort classification of a single temperature.
type StatusState string

const (
	StatusOK      StatusState = "OK"
	StatusWarn    StatusState = "WARN"
	StatusAlarm   StatusState = "ALARM"
	StatusUnknown StatusState = "UNKNOWN"
)

// Classify maps a temperature in °F to OK [68,75], WARN [65,68) or (75,78],
// and ALARM for everything else.
func Classify(tempF float64) StatusState {
	switch {
	case tempF >= 68.0 && tempF <= 75.0:
		return StatusOK
	case (tempF >= 65.0 && tempF < 68.0) || (tempF > 75.0 && tempF <= 78.0):
		return StatusWarn
	default:
		return StatusAlarm
	}
}

// AlertRecord is the last alert issued for a sensor.
type AlertRecord struct {
	State    StatusState
	Temp     float64
	IssuedAt time.Time
}

// AlertPolicy controls when an ALARM status is re-issued as an alert.
type AlertPolicy struct {
	// TempDelta re-issues when the temperature moved at least this far
	TempDelta float64
	// Reissue re-issues when the previous alert is at least this old
	Reissue time.Duration
}

// DefaultAlertPolicy returns the production alert suppression policy.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		TempDelta: 1.0,
		Reissue:   60 * time.Second,
	}
}

// AlertGate suppresses repeated alerts for polled status snapshots.
// Safe for concurrent use.
type AlertGate struct {
	mu     sync.Mutex
	policy AlertPolicy
	last   map[string]AlertRecord
}

// NewAlertGate creates a gate with the given policy.
func NewAlertGate(policy AlertPolicy) *AlertGate {
	return &AlertGate{
		policy: policy,
		last:   make(map[string]AlertRecord),
	}
}

// Observe records a status snapshot and reports whether an alert should be issued.
//
// Only ALARM snapshots can issue. An ALARM issues when there is no prior alert,
// the prior record's state is not ALARM, the temperature moved by at least
// TempDelta, or the prior alert is at least Reissue old. A non-ALARM snapshot
// overwrites the recorded state so the next ALARM issues immediately.
func (g *AlertGate) Observe(sensorID string, state StatusState, temp float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	prior, ok := g.last[sensorID]
	if state != StatusAlarm {
		if ok {
			prior.State = state
			g.last[sensorID] = prior
		}
		return false
	}

	issue := !ok ||
		prior.State != StatusAlarm ||
		math.Abs(temp-prior.Temp) >= g.policy.TempDelta ||
		now.Sub(prior.IssuedAt) >= g.policy.Reissue
	if !issue {
		return false
	}

	g.last[sensorID] = AlertRecord{State: StatusAlarm, Temp: temp, IssuedAt: now}
	return true
}

// Last returns the last alert record for a sensor.
func (g *AlertGate) Last(sensorID string) (AlertRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.last[sensorID]
	return rec, ok
}
