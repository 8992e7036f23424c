package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamOptions names the stream, subject and durable consumer for readings.
type StreamOptions struct {
	URL     string
	Stream  string
	Subject string
	Durable string
	// MaxDeliver caps redeliveries of a requeued message; -1 is unlimited.
	MaxDeliver int
}

// EnsureStream creates or updates the readings stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, o StreamOptions) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      o.Stream,
		Subjects:  []string{o.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", o.Stream, err)
	}
	return stream, nil
}
