// Package logic contains pure business logic for HVAC fault detection.
// This package has NO external dependencies (no MQTT, NATS, HTTP, OS, or time.Sleep).
// Time is always injectable: reading timestamps drive the detector, and the
// sweeper and alert gate take the current time as a parameter.
package logic

import "time"

// IncidentType identifies which fault rule produced an incident.
type IncidentType string

const (
	IncidentHighTemperature   IncidentType = "High Temperature"
	IncidentErraticSensorData IncidentType = "Erratic Sensor Data"
	IncidentSensorSilent      IncidentType = "Sensor Silent"
)

// SeverityCritical is the severity attached to every detector incident.
const SeverityCritical = "critical"

// Runbook returns the runbook link for an incident type, or "" if none exists.
func (t IncidentType) Runbook() string {
	switch t {
	case IncidentHighTemperature:
		return "/docs/runbooks/high-temp-alarm.md"
	case IncidentSensorSilent:
		return "/docs/runbooks/sensor-silent-alarm.md"
	default:
		return ""
	}
}

// Reading is a single temperature sample reported by a sensor.
// Timestamp is in integer seconds and is supplied by the sensor, not the receiver.
type Reading struct {
	SensorID    string
	Temperature float64
	Timestamp   int64
}

// Sample is one retained entry of a sensor's erratic window.
type Sample struct {
	Temperature float64
	Timestamp   int64
}

// SensorState is the per-sensor detection state.
type SensorState struct {
	// Watermark: max timestamp of any accepted reading
	LastSeen int64
	// Start of the current above-threshold streak; nil when no streak is open
	HighTempSince *int64
	// Trailing erratic window, oldest first
	Recent []Sample
	// Timestamp of the most recently processed reading
	LastProcessed int64
	// Temperature of the most recently processed reading
	LastTemperature float64
	// Number of readings accepted for this sensor
	Readings int64
}

func (s SensorState) clone() SensorState {
	c := s
	if s.HighTempSince != nil {
		v := *s.HighTempSince
		c.HighTempSince = &v
	}
	c.Recent = append([]Sample(nil), s.Recent...)
	return c
}

// Incident is a detected fault. Incidents are values and never mutated after creation.
type Incident struct {
	Type     IncidentType
	SensorID string
	// Value is the triggering temperature; nil for SensorSilent
	Value    *float64
	Severity string
	Details  map[string]any
	// DetectedAt is the reading timestamp (or sweep time) that produced the incident
	DetectedAt int64
}

// Thresholds configures the three fault rules and the sweeper.
type Thresholds struct {
	HighTemp         float64
	HighTempDuration int64 // seconds
	ErraticChange    float64
	ErraticWindow    int64 // seconds
	SilenceThreshold int64 // seconds
	SweepInterval    time.Duration
}

// DefaultThresholds returns the production fault thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighTemp:         80.0,
		HighTempDuration: 5 * 60,
		ErraticChange:    10.0,
		ErraticWindow:    10,
		SilenceThreshold: 2 * 60,
		SweepInterval:    30 * time.Second,
	}
}

// IncidentCounts tracks the number of each incident type since startup.
type IncidentCounts struct {
	HighTemperature int
	Erratic         int
	Silent          int
}

func (c *IncidentCounts) add(t IncidentType) {
	switch t {
	case IncidentHighTemperature:
		c.HighTemperature++
	case IncidentErraticSensorData:
		c.Erratic++
	case IncidentSensorSilent:
		c.Silent++
	}
}

// Total returns the sum of all incident counts.
func (c IncidentCounts) Total() int {
	return c.HighTemperature + c.Erratic + c.Silent
}
