package logic

import (
	"maps"
	"slices"
	"sync"
)

// Store holds all per-sensor detection state behind a single mutex.
// The Engine and Sweeper share one Store; every ingest and sweep holds the
// lock for its whole duration, so they never observe each other mid-update.
type Store struct {
	mu      sync.Mutex
	sensors map[string]*SensorState
	// silence-tracking watermarks; an entry is removed once reported silent
	silence map[string]int64
	counts  IncidentCounts
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{
		sensors: make(map[string]*SensorState),
		silence: make(map[string]int64),
	}
}

// Sensor returns a copy of the state for the given sensor.
func (s *Store) Sensor(id string) (SensorState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sensors[id]
	if !ok {
		return SensorState{}, false
	}
	return st.clone(), true
}

// SilenceTracked reports whether the sensor currently has a silence-tracking entry.
func (s *Store) SilenceTracked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.silence[id]
	return ok
}

// Len returns the number of known sensors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sensors)
}

// Counts returns the incident counts since startup.
func (s *Store) Counts() IncidentCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// SensorSummary is a display-oriented view of one sensor's state.
type SensorSummary struct {
	SensorID        string
	LastSeen        int64
	LastProcessed   int64
	LastTemperature float64
	Readings        int64
	StreakOpen      bool
	StreakSince     int64
	WindowSize      int
	SilenceTracked  bool
}

// Summaries returns a summary of every known sensor, ordered by sensor ID.
func (s *Store) Summaries() []SensorSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SensorSummary, 0, len(s.sensors))
	for _, id := range slices.Sorted(maps.Keys(s.sensors)) {
		st := s.sensors[id]
		_, tracked := s.silence[id]
		sum := SensorSummary{
			SensorID:        id,
			LastSeen:        st.LastSeen,
			LastProcessed:   st.LastProcessed,
			LastTemperature: st.LastTemperature,
			Readings:        st.Readings,
			WindowSize:      len(st.Recent),
			SilenceTracked:  tracked,
		}
		if st.HighTempSince != nil {
			sum.StreakOpen = true
			sum.StreakSince = *st.HighTempSince
		}
		out = append(out, sum)
	}
	return out
}
