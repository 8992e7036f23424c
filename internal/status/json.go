package status

import (
	"time"

	"github.com/goccy/go-json"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastSweep     string        `json:"last_sweep,omitempty"`
	Source        SourceJSON    `json:"source"`
	Readings      ReadingsJSON  `json:"readings"`
	Incidents     IncidentsJSON `json:"incident_counts"`
	Dispatch      DispatchJSON  `json:"dispatch"`
	Sensors       []SensorJSON  `json:"sensors,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// SourceJSON reports reading source connectivity.
type SourceJSON struct {
	Transport string `json:"transport"`
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}

// ReadingsJSON counts consumed messages.
type ReadingsJSON struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Requeued int64 `json:"requeued"`
}

// IncidentsJSON counts incidents since startup.
type IncidentsJSON struct {
	HighTemperature int `json:"high_temperature"`
	Erratic         int `json:"erratic_sensor_data"`
	Silent          int `json:"sensor_silent"`
	Total           int `json:"total"`
}

// DispatchJSON reports collaborator fan-out state.
type DispatchJSON struct {
	Queued   int               `json:"queued"`
	Dropped  int64             `json:"dropped"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// SensorJSON is one sensor's detection state.
type SensorJSON struct {
	SensorID        string  `json:"sensor_id"`
	LastSeen        int64   `json:"last_seen"`
	LastProcessed   int64   `json:"last_processed"`
	LastTemperature float64 `json:"last_temperature"`
	Readings        int64   `json:"readings"`
	StreakSince     *int64  `json:"high_temp_since"`
	WindowSize      int     `json:"window_size"`
	SilenceTracked  bool    `json:"silence_tracked"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HighTemp          float64 `json:"high_temp"`
	HighTempDurationS int64   `json:"high_temp_duration_s"`
	ErraticChange     float64 `json:"erratic_change"`
	ErraticWindowS    int64   `json:"erratic_window_s"`
	SilenceThresholdS int64   `json:"silence_threshold_s"`
	SweepIntervalS    int64   `json:"sweep_interval_s"`
	HTTPAddr          string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Source: SourceJSON{
			Transport: snap.Config.Transport,
			URL:       snap.Config.Source,
			Connected: snap.SourceConnected,
		},
		Readings: ReadingsJSON{
			Accepted: snap.Readings.Accepted,
			Rejected: snap.Readings.Rejected,
			Requeued: snap.Readings.Requeued,
		},
		Incidents: IncidentsJSON{
			HighTemperature: snap.Incidents.HighTemperature,
			Erratic:         snap.Incidents.Erratic,
			Silent:          snap.Incidents.Silent,
			Total:           snap.Incidents.Total(),
		},
		Dispatch: DispatchJSON{
			Queued:   snap.Dispatch.Queued,
			Dropped:  snap.Dispatch.Dropped,
			Breakers: snap.Dispatch.Breakers,
		},
		Config: ConfigJSON{
			HighTemp:          snap.Config.HighTemp,
			HighTempDurationS: snap.Config.HighTempDurationS,
			ErraticChange:     snap.Config.ErraticChange,
			ErraticWindowS:    snap.Config.ErraticWindowS,
			SilenceThresholdS: snap.Config.SilenceThresholdS,
			SweepIntervalS:    snap.Config.SweepIntervalS,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}
	if !snap.LastSweep.IsZero() {
		inner.LastSweep = snap.LastSweep.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildSensors(snap Snapshot, inner *StatusInner) {
	for _, s := range snap.Sensors {
		sj := SensorJSON{
			SensorID:        s.SensorID,
			LastSeen:        s.LastSeen,
			LastProcessed:   s.LastProcessed,
			LastTemperature: s.LastTemperature,
			Readings:        s.Readings,
			WindowSize:      s.WindowSize,
			SilenceTracked:  s.SilenceTracked,
		}
		if s.StreakOpen {
			since := s.StreakSince
			sj.StreakSince = &since
		}
		inner.Sensors = append(inner.Sensors, sj)
	}
}

// FormatJSON returns the JSON status for the web endpoint, including per-sensor state.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildSensors(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT system event.
// Per-sensor state is left out to keep lifecycle messages small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
