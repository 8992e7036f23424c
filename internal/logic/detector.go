package logic

import (
	"maps"
	"math"
	"slices"
	"time"
)

// Engine evaluates the per-reading fault rules against a shared Store.
type Engine struct {
	store      *Store
	thresholds Thresholds
}

// NewEngine creates a detection engine over the given store.
func NewEngine(store *Store, thresholds Thresholds) *Engine {
	return &Engine{
		store:      store,
		thresholds: thresholds,
	}
}

// Store returns the state store shared with the sweeper.
func (e *Engine) Store() *Store {
	return e.store
}

// Ingest applies one reading and returns any incidents it triggers.
// Incidents are returned in rule order: High Temperature, then Erratic Sensor Data.
func (e *Engine) Ingest(r Reading) []Incident {
	return e.IngestFunc(r, nil)
}

// IngestFunc is Ingest with an emission step. Rules run against a private
// copy of the sensor state; emit (if non-nil) is called with the incidents
// while the store lock is held, and the copy is committed only after emit
// returns. If emit panics the store, watermark and counts are left untouched
// and the panic propagates to the caller.
func (e *Engine) IngestFunc(r Reading, emit func([]Incident)) []Incident {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	var next SensorState
	if cur, ok := e.store.sensors[r.SensorID]; ok {
		next = cur.clone()
	}

	incidents := e.evaluate(&next, r)
	if emit != nil && len(incidents) > 0 {
		emit(incidents)
	}

	e.store.sensors[r.SensorID] = &next
	e.store.silence[r.SensorID] = next.LastSeen
	for _, inc := range incidents {
		e.store.counts.add(inc.Type)
	}
	return incidents
}

func (e *Engine) evaluate(s *SensorState, r Reading) []Incident {
	if s.Readings == 0 || r.Timestamp > s.LastSeen {
		s.LastSeen = r.Timestamp
	}
	s.Readings++
	s.LastProcessed = r.Timestamp
	s.LastTemperature = r.Temperature

	var incidents []Incident
	if inc := e.checkHighTemp(s, r); inc != nil {
		incidents = append(incidents, *inc)
	}
	if inc := e.checkErratic(s, r); inc != nil {
		incidents = append(incidents, *inc)
	}
	return incidents
}

// checkHighTemp tracks the above-threshold streak. Emitting closes the streak,
// so a sensor that stays hot must accumulate the full duration again.
func (e *Engine) checkHighTemp(s *SensorState, r Reading) *Incident {
	if r.Temperature <= e.thresholds.HighTemp {
		s.HighTempSince = nil
		return nil
	}

	if s.HighTempSince == nil {
		start := r.Timestamp
		s.HighTempSince = &start
		return nil
	}

	if r.Timestamp-*s.HighTempSince < e.thresholds.HighTempDuration {
		return nil
	}

	s.HighTempSince = nil
	return &Incident{
		Type:       IncidentHighTemperature,
		SensorID:   r.SensorID,
		Value:      temperature(r.Temperature),
		Severity:   SeverityCritical,
		Details:    map[string]any{"threshold": e.thresholds.HighTemp},
		DetectedAt: r.Timestamp,
	}
}

// checkErratic appends the reading to the window, prunes it relative to the
// reading's own timestamp, then compares the oldest retained sample with the
// newest. This is an endpoint comparison, not a max-min envelope.
func (e *Engine) checkErratic(s *SensorState, r Reading) *Incident {
	s.Recent = append(s.Recent, Sample{Temperature: r.Temperature, Timestamp: r.Timestamp})

	cutoff := r.Timestamp - e.thresholds.ErraticWindow
	kept := s.Recent[:0]
	for _, sample := range s.Recent {
		if sample.Timestamp > cutoff {
			kept = append(kept, sample)
		}
	}
	s.Recent = kept

	if len(s.Recent) < 2 {
		return nil
	}

	first, last := s.Recent[0], s.Recent[len(s.Recent)-1]
	if last.Timestamp-first.Timestamp <= 0 {
		return nil
	}
	diff := math.Abs(last.Temperature - first.Temperature)
	if diff <= e.thresholds.ErraticChange {
		return nil
	}

	return &Incident{
		Type:     IncidentErraticSensorData,
		SensorID: r.SensorID,
		Value:    temperature(r.Temperature),
		Severity: SeverityCritical,
		Details: map[string]any{
			"temp_diff":      diff,
			"window_seconds": e.thresholds.ErraticWindow,
		},
		DetectedAt: r.Timestamp,
	}
}

// Sweeper reports sensors that have stopped sending readings.
type Sweeper struct {
	store      *Store
	thresholds Thresholds
}

// NewSweeper creates a sweeper over the store owned by an Engine.
func NewSweeper(store *Store, thresholds Thresholds) *Sweeper {
	return &Sweeper{
		store:      store,
		thresholds: thresholds,
	}
}

// Interval returns how often Sweep should be called.
func (s *Sweeper) Interval() time.Duration {
	return s.thresholds.SweepInterval
}

// Sweep emits a SensorSilent incident for every tracked sensor whose watermark
// is more than the silence threshold behind now (unix seconds). A reported
// sensor loses its tracking entry and is not reported again until a new
// reading arrives. Incidents are ordered by sensor ID.
func (s *Sweeper) Sweep(now int64) []Incident {
	return s.SweepFunc(now, nil)
}

// SweepFunc is Sweep with an emission step. emit (if non-nil) is called with
// the incidents under the store lock; tracking entries are removed only after
// it returns, so a panicking emit leaves every sensor tracked.
func (s *Sweeper) SweepFunc(now int64, emit func([]Incident)) []Incident {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	var incidents []Incident
	for _, id := range slices.Sorted(maps.Keys(s.store.silence)) {
		lastSeen := s.store.silence[id]
		if now-lastSeen <= s.thresholds.SilenceThreshold {
			continue
		}
		incidents = append(incidents, Incident{
			Type:       IncidentSensorSilent,
			SensorID:   id,
			Severity:   SeverityCritical,
			Details:    map[string]any{"last_seen": lastSeen},
			DetectedAt: now,
		})
	}
	if emit != nil && len(incidents) > 0 {
		emit(incidents)
	}

	for _, inc := range incidents {
		delete(s.store.silence, inc.SensorID)
		s.store.counts.add(IncidentSensorSilent)
	}
	return incidents
}

func temperature(v float64) *float64 {
	return &v
}
