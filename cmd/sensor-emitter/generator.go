package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// Fault injection modes.
const (
	FaultNone    = ""
	FaultHigh    = "high"
	FaultErratic = "erratic"
	FaultSilent  = "silent"
)

// Sensor ranges.
const (
	normalMin = 68.0
	normalMax = 75.0
	highMin   = 82.0
	highMax   = 90.0
	// erratic readings swing between these two values
	erraticLow  = 60.0
	erraticHigh = 85.0
)

// DefaultSensors are the simulated sensor IDs.
var DefaultSensors = []string{"sensor-1", "sensor-2", "sensor-3"}

// Generator produces simulated readings. One sensor is picked at random per
// reading. A fault mode targets a single sensor:
//
//	high    - the target reports 82-90 °F
//	erratic - the target alternates between 60 and 85 °F
//	silent  - the target never reports
//
// Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	sensors []string
	fault   string
	target  string
	swing   bool
	now     func() time.Time
}

// NewGenerator creates a generator. target must be one of sensors when a
// fault mode is set.
func NewGenerator(rng *rand.Rand, sensors []string, fault, target string, now func() time.Time) (*Generator, error) {
	switch fault {
	case FaultNone, FaultHigh, FaultErratic, FaultSilent:
	default:
		return nil, fmt.Errorf("unknown fault mode %q", fault)
	}
	if len(sensors) == 0 {
		return nil, fmt.Errorf("no sensors configured")
	}
	if fault != FaultNone && !slices.Contains(sensors, target) {
		return nil, fmt.Errorf("fault target %q is not a configured sensor", target)
	}
	if fault == FaultSilent && len(sensors) == 1 {
		return nil, fmt.Errorf("silent mode needs at least one other sensor")
	}
	return &Generator{
		rng:     rng,
		sensors: sensors,
		fault:   fault,
		target:  target,
		now:     now,
	}, nil
}

// Next returns the next reading, timestamped in integer seconds.
func (g *Generator) Next() logic.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.pickSensor()
	return logic.Reading{
		SensorID:    id,
		Temperature: g.temperature(id),
		Timestamp:   g.now().Unix(),
	}
}

// Temperature returns a normal-range temperature for the status endpoint.
func (g *Generator) Temperature() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uniform(normalMin, normalMax)
}

// Interval returns a uniform delay between 1 and 3 seconds.
func (g *Generator) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Second + time.Duration(g.rng.Int64N(int64(2*time.Second)+1))
}

func (g *Generator) pickSensor() string {
	for {
		id := g.sensors[g.rng.IntN(len(g.sensors))]
		if g.fault == FaultSilent && id == g.target {
			continue
		}
		return id
	}
}

func (g *Generator) temperature(id string) float64 {
	if id != g.target {
		return g.uniform(normalMin, normalMax)
	}
	switch g.fault {
	case FaultHigh:
		return g.uniform(highMin, highMax)
	case FaultErratic:
		g.swing = !g.swing
		if g.swing {
			return erraticHigh
		}
		return erraticLow
	default:
		return g.uniform(normalMin, normalMax)
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return round2(lo + g.rng.Float64()*(hi-lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
