// Package dispatch fans detected incidents out to collaborators.
//
// Submit never blocks: incidents are queued and delivered by a worker,
// each collaborator behind its own timeout and circuit breaker. A slow or
// failing collaborator cannot stall ingestion or the other collaborators.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/metrics"
	"github.com/sweeney/hvac-monitor/internal/status"
)

// Job is one incident queued for delivery.
type Job struct {
	ID       string
	Incident logic.Incident
	Queued   time.Time
}

// Collaborator receives incidents. Deliver must honour ctx cancellation.
type Collaborator interface {
	Name() string
	Deliver(ctx context.Context, job Job) error
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize       int
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

// DefaultOptions returns the production dispatch settings.
func DefaultOptions() Options {
	return Options{
		QueueSize:       256,
		Timeout:         5 * time.Second,
		BreakerFailures: 5,
		BreakerOpenFor:  30 * time.Second,
	}
}

type target struct {
	collab Collaborator
	cb     *gobreaker.CircuitBreaker[any]
}

// Dispatcher queues incidents and delivers them to every collaborator.
type Dispatcher struct {
	opts    Options
	targets []target
	queue   *jobQueue
}

// New creates a Dispatcher delivering to the given collaborators.
func New(opts Options, collaborators ...Collaborator) *Dispatcher {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = def.BreakerFailures
	}
	if opts.BreakerOpenFor <= 0 {
		opts.BreakerOpenFor = def.BreakerOpenFor
	}

	d := &Dispatcher{
		opts:  opts,
		queue: newJobQueue(opts.QueueSize),
	}
	for _, c := range collaborators {
		d.targets = append(d.targets, target{collab: c, cb: newBreaker(c.Name(), opts)})
	}
	return d
}

func newBreaker(name string, opts Options) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("collaborator", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Submit queues incidents for delivery and returns their job IDs.
// When the queue is full the oldest job is dropped.
func (d *Dispatcher) Submit(incidents []logic.Incident) []string {
	ids := make([]string, 0, len(incidents))
	now := time.Now()
	for _, inc := range incidents {
		job := Job{ID: uuid.NewString(), Incident: inc, Queued: now}
		if dropped, ok := d.queue.push(job); ok {
			metrics.DispatchDropped.Inc()
			logging.Warn().
				Str("job_id", dropped.ID).
				Str("incident_type", string(dropped.Incident.Type)).
				Str("sensor_id", dropped.Incident.SensorID).
				Msg("dispatch queue full, dropped oldest incident")
		}
		ids = append(ids, job.ID)
	}
	metrics.DispatchQueueDepth.Set(float64(d.queue.len()))
	return ids
}

// Run delivers queued jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		job, ok := d.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-d.queue.ready:
			}
			continue
		}
		metrics.DispatchQueueDepth.Set(float64(d.queue.len()))
		d.deliver(ctx, job)
	}
}

// Serve implements suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	return d.Run(ctx)
}

func (d *Dispatcher) String() string {
	return "dispatcher"
}

// deliver sends one job to every collaborator concurrently and waits for all.
func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	var wg sync.WaitGroup
	for _, t := range d.targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			d.deliverTo(ctx, t, job)
		}(t)
	}
	wg.Wait()
}

func (d *Dispatcher) deliverTo(ctx context.Context, t target, job Job) {
	name := t.collab.Name()
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	_, err := t.cb.Execute(func() (any, error) {
		return nil, t.collab.Deliver(ctx, job)
	})
	metrics.DeliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.DeliveriesTotal.WithLabelValues(name, metrics.DeliveryOK).Inc()
		logging.Debug().
			Str("collaborator", name).
			Str("job_id", job.ID).
			Str("incident_type", string(job.Incident.Type)).
			Msg("incident delivered")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.DeliveriesTotal.WithLabelValues(name, metrics.DeliveryBreakerOpen).Inc()
		logging.Warn().
			Str("collaborator", name).
			Str("job_id", job.ID).
			Str("incident_type", string(job.Incident.Type)).
			Msg("collaborator circuit open, incident skipped")
	default:
		metrics.DeliveriesTotal.WithLabelValues(name, metrics.DeliveryError).Inc()
		logging.Warn().
			Err(err).
			Str("collaborator", name).
			Str("job_id", job.ID).
			Str("incident_type", string(job.Incident.Type)).
			Str("sensor_id", job.Incident.SensorID).
			Msg("incident delivery failed")
	}
}

// Stats returns queue depth, drops and breaker states.
func (d *Dispatcher) Stats() status.DispatchStats {
	breakers := make(map[string]string, len(d.targets))
	for _, t := range d.targets {
		breakers[t.collab.Name()] = t.cb.State().String()
	}
	return status.DispatchStats{
		Queued:   d.queue.len(),
		Dropped:  d.queue.droppedCount(),
		Breakers: breakers,
	}
}
