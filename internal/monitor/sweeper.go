package monitor

import (
	"context"
	"time"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/metrics"
)

// SweepRecorder records sweep times. Implemented by *status.Tracker.
type SweepRecorder interface {
	SetLastSweep(at time.Time)
}

// SweeperService runs the silence sweep on a fixed interval.
type SweeperService struct {
	sweeper   *logic.Sweeper
	submitter Submitter
	recorder  SweepRecorder
	now       func() time.Time
	tick      func() (<-chan time.Time, func())
}

// NewSweeperService creates a service sweeping at sweeper.Interval().
// A nil recorder is allowed.
func NewSweeperService(sweeper *logic.Sweeper, submitter Submitter, recorder SweepRecorder) *SweeperService {
	return &SweeperService{
		sweeper:   sweeper,
		submitter: submitter,
		recorder:  recorder,
		now:       time.Now,
		tick: func() (<-chan time.Time, func()) {
			t := time.NewTicker(sweeper.Interval())
			return t.C, t.Stop
		},
	}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	tick, stop := s.tick()
	defer stop()

	logging.Info().Dur("interval", s.sweeper.Interval()).Msg("silence sweeper started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep against the current wall-clock time.
func (s *SweeperService) SweepOnce() []logic.Incident {
	now := s.now()
	incidents := s.sweeper.SweepFunc(now.Unix(), func(incidents []logic.Incident) {
		s.submitter.Submit(incidents)
	})
	metrics.SweepsTotal.Inc()
	if s.recorder != nil {
		s.recorder.SetLastSweep(now)
	}
	emit(incidents)
	return incidents
}

func (s *SweeperService) String() string {
	return "silence-sweeper"
}
