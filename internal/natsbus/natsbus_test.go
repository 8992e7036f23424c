package natsbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/queue"
)

func startServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	srv, err := NewEmbeddedServer(ServerOptions{Port: -1, StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func testOptions(url string) StreamOptions {
	return StreamOptions{
		URL:     url,
		Stream:  "SENSOR_DATA",
		Subject: "sensor_data",
		Durable: "monitoring-service",
	}
}

func TestEmbeddedServer(t *testing.T) {
	srv := startServer(t)
	require.True(t, srv.IsRunning())
	require.Contains(t, srv.ClientURL(), "nats://127.0.0.1:")
}

func TestConsumerDispositions(t *testing.T) {
	srv := startServer(t)
	opts := testOptions(srv.ClientURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := NewPublisher(ctx, opts)
	require.NoError(t, err)
	defer pub.Close()

	var (
		mu       sync.Mutex
		seen     []string
		requeued bool
	)
	handler := func(_ context.Context, payload []byte) queue.Disposition {
		r, err := queue.DecodeReading(payload)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			seen = append(seen, "malformed")
			return queue.Reject
		}
		seen = append(seen, r.SensorID)
		if r.SensorID == "retry" && !requeued {
			requeued = true
			return queue.Requeue
		}
		return queue.Ack
	}

	consumer := NewConsumer(opts)
	require.Equal(t, "nats", consumer.Name())
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Consume(ctx, handler) }()
	require.Eventually(t, consumer.IsConnected, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, pub.PublishReading(ctx, logic.Reading{SensorID: "ok", Temperature: 70, Timestamp: 1}))
	require.NoError(t, pub.PublishRaw(ctx, []byte(`{"sensor_id":"bad","temperature":"not-a-number","timestamp":2}`)))
	require.NoError(t, pub.PublishReading(ctx, logic.Reading{SensorID: "retry", Temperature: 70, Timestamp: 3}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, 10*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	require.ElementsMatch(t, []string{"ok", "malformed", "retry", "retry"}, seen)
	mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
	require.False(t, consumer.IsConnected())
}

func TestConsumerReturnsErrorWhenServerStops(t *testing.T) {
	srv, err := NewEmbeddedServer(ServerOptions{Port: -1, StoreDir: t.TempDir()})
	require.NoError(t, err)

	consumer := NewConsumer(testOptions(srv.ClientURL()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Consume(context.Background(), func(context.Context, []byte) queue.Disposition { return queue.Ack })
	}()
	require.Eventually(t, consumer.IsConnected, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Consume did not return after server shutdown")
	}
}

func TestConsumerConnectFailure(t *testing.T) {
	consumer := NewConsumer(testOptions("nats://127.0.0.1:1"))
	err := consumer.Consume(context.Background(), func(context.Context, []byte) queue.Disposition { return queue.Ack })
	require.Error(t, err)
}
