package monitor

import (
	"context"
	"time"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/metrics"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// ConsumerService keeps a reading source consuming, reconnecting after a
// fixed backoff whenever the source fails. It only returns when ctx ends.
type ConsumerService struct {
	source  queue.Source
	handler queue.Handler
	backoff time.Duration
	after   func(time.Duration) <-chan time.Time
}

// NewConsumerService creates a service feeding source messages to handler.
func NewConsumerService(source queue.Source, handler queue.Handler, backoff time.Duration) *ConsumerService {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &ConsumerService{
		source:  source,
		handler: handler,
		backoff: backoff,
		after:   time.After,
	}
}

// Serve implements suture.Service.
func (s *ConsumerService) Serve(ctx context.Context) error {
	stop := s.watchConnection(ctx)
	defer stop()

	for {
		err := s.source.Consume(ctx, s.handler)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logging.Error().
				Err(err).
				Str("source", s.source.Name()).
				Dur("retry_in", s.backoff).
				Msg("reading source unavailable, retrying")
		} else {
			logging.Warn().
				Str("source", s.source.Name()).
				Dur("retry_in", s.backoff).
				Msg("reading source stopped, retrying")
		}
		metrics.SetConnected(false)

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(s.backoff):
		}
		metrics.SourceReconnects.Inc()
	}
}

func (s *ConsumerService) String() string {
	return "consumer:" + s.source.Name()
}

type connectionStatus interface {
	IsConnected() bool
}

// watchConnection mirrors source connectivity into the metrics gauge.
func (s *ConsumerService) watchConnection(ctx context.Context) func() {
	cs, ok := s.source.(connectionStatus)
	if !ok {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			metrics.SetConnected(cs.IsConnected())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
