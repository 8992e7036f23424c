// Package queue defines the delivery contract between a reading source and
// the message handler.
//
// A handler returns a Disposition for every message. Sources translate it to
// their own acknowledgement primitive:
//
//	Ack      message processed, remove it
//	Reject   message is malformed, remove it without redelivery
//	Requeue  processing failed transiently, deliver it again
package queue

import "context"

// Disposition is a handler's verdict on one message.
type Disposition int

const (
	Ack Disposition = iota
	Reject
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Handler processes one message payload. It is called for one message at a time.
type Handler func(ctx context.Context, payload []byte) Disposition

// Source delivers messages to a Handler until ctx is cancelled or the
// connection fails. A non-nil error means the source should be reconnected.
type Source interface {
	Consume(ctx context.Context, h Handler) error
	// Name identifies the transport in logs and status output.
	Name() string
}
