// Package monitor runs the consumption path and the periodic tasks that
// share detection state: the reading processor, the consumer service with
// fixed reconnect backoff, the silence sweeper and the status alert poller.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/metrics"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

// Submitter accepts emitted incidents. Implemented by *dispatch.Dispatcher.
type Submitter interface {
	Submit(incidents []logic.Incident) []string
}

// Recorder counts handled readings. Implemented by *status.Tracker.
type Recorder interface {
	RecordReading(d queue.Disposition)
}

// Processor turns one message payload into a state update and emitted incidents.
type Processor struct {
	engine    *logic.Engine
	submitter Submitter
	recorder  Recorder
}

// NewProcessor creates a Processor. A nil recorder is allowed.
func NewProcessor(engine *logic.Engine, submitter Submitter, recorder Recorder) *Processor {
	return &Processor{
		engine:    engine,
		submitter: submitter,
		recorder:  recorder,
	}
}

// Handle implements queue.Handler.
//
// Malformed payloads are rejected with no state change. Any panic while
// ingesting or emitting is recovered and the message requeued. The message
// is acknowledged only after the state update and emission both complete.
func (p *Processor) Handle(ctx context.Context, payload []byte) (disp queue.Disposition) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("payload", truncate(payload, 256)).
				Msg("reading processing failed, requeueing")
			disp = queue.Requeue
		}
		p.record(disp)
	}()

	reading, err := queue.DecodeReading(payload)
	if err != nil {
		if errors.Is(err, queue.ErrMalformedReading) {
			logging.Warn().
				Err(err).
				Bytes("payload", truncate(payload, 256)).
				Msg("rejecting malformed reading")
			return queue.Reject
		}
		logging.Error().Err(err).Msg("reading decode failed, requeueing")
		return queue.Requeue
	}

	// Submit runs before the state commit: if it panics the reading is
	// requeued with the sensor state exactly as it was.
	incidents := p.engine.IngestFunc(reading, func(incidents []logic.Incident) {
		p.submitter.Submit(incidents)
	})
	metrics.SensorsTracked.Set(float64(p.engine.Store().Len()))
	emit(incidents)

	logging.Debug().
		Str("sensor_id", reading.SensorID).
		Float64("temperature", reading.Temperature).
		Int64("timestamp", reading.Timestamp).
		Int("incidents", len(incidents)).
		Msg("reading processed")
	return queue.Ack
}

func (p *Processor) record(d queue.Disposition) {
	switch d {
	case queue.Ack:
		metrics.ReadingsTotal.WithLabelValues(metrics.ResultAccepted).Inc()
	case queue.Reject:
		metrics.ReadingsTotal.WithLabelValues(metrics.ResultRejected).Inc()
	case queue.Requeue:
		metrics.ReadingsTotal.WithLabelValues(metrics.ResultRequeued).Inc()
	}
	if p.recorder != nil {
		p.recorder.RecordReading(d)
	}
}

// emit logs and counts incidents once they are committed and handed to the dispatcher.
func emit(incidents []logic.Incident) {
	for _, inc := range incidents {
		metrics.IncidentsTotal.WithLabelValues(string(inc.Type)).Inc()
		ev := logging.Warn().
			Str("incident_type", string(inc.Type)).
			Str("sensor_id", inc.SensorID).
			Int64("detected_at", inc.DetectedAt)
		if inc.Value != nil {
			ev = ev.Float64("value", *inc.Value)
		}
		ev.Msg("incident detected")
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
