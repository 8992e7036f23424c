package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/monitor"
	"github.com/sweeney/hvac-monitor/internal/mqtt"
	"github.com/sweeney/hvac-monitor/internal/natsbus"
	"github.com/sweeney/hvac-monitor/internal/web"
)

// fakeAfter hands out a shared tick channel and records requested delays.
type fakeAfter struct {
	mu     sync.Mutex
	ticks  chan time.Time
	delays []time.Duration
}

func newFakeAfter() *fakeAfter {
	return &fakeAfter{ticks: make(chan time.Time)}
}

func (f *fakeAfter) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	return f.ticks
}

func runRunLoop(t *testing.T, gen *Generator, pub readingPublisher, ticks int) *fakeAfter {
	t.Helper()
	fa := newFakeAfter()
	sig := make(chan os.Signal)
	done := make(chan struct{})

	go func() {
		runLoop(gen, pub, fa.after, sig)
		close(done)
	}()

	for i := 0; i < ticks; i++ {
		fa.ticks <- fixedNow
	}
	sig <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}
	return fa
}

func TestRunLoopPublishesPerTick(t *testing.T) {
	gen := newTestGenerator(t, FaultNone, "")
	pub := mqtt.NewFakePublisher()

	fa := runRunLoop(t, gen, mqttReadings{pub: pub}, 3)

	if len(pub.Readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(pub.Readings))
	}
	for _, d := range fa.delays {
		if d < time.Second || d > 3*time.Second {
			t.Errorf("delay %v outside [1s, 3s]", d)
		}
	}
}

func TestRunLoopContinuesAfterPublishError(t *testing.T) {
	gen := newTestGenerator(t, FaultNone, "")
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	fa := runRunLoop(t, gen, mqttReadings{pub: pub}, 2)

	if len(pub.Readings) != 0 {
		t.Errorf("expected no readings, got %d", len(pub.Readings))
	}
	if len(fa.delays) < 3 {
		t.Errorf("expected loop to keep waiting after errors, got %d waits", len(fa.delays))
	}
}

func TestEmitWrapsError(t *testing.T) {
	gen := newTestGenerator(t, FaultNone, "")
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	r, err := emit(gen, mqttReadings{pub: pub})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), r.SensorID) || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConnectUnknownTransport(t *testing.T) {
	if _, err := connect("amqp", "", "", natsbus.StreamOptions{}); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadingEndpoint(t *testing.T) {
	gen := newTestGenerator(t, FaultNone, "")
	h := newRouter(gen, mqttReadings{pub: mqtt.NewFakePublisher()}, func() time.Time { return fixedNow })

	rec := serve(t, h, http.MethodGet, "/reading")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got monitor.SensorReading
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.SensorID != "sensor-1" || got.Status != "OK" {
		t.Errorf("got sensor_id=%q status=%q", got.SensorID, got.Status)
	}
	if got.TempF == nil || *got.TempF < normalMin || *got.TempF > normalMax {
		t.Errorf("temp_f out of range: %v", got.TempF)
	}
	if got.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp: got %q", got.Timestamp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		wantCode  int
		want      string
	}{
		{"connected", true, http.StatusOK, web.HealthHealthy},
		{"disconnected", false, http.StatusInternalServerError, web.HealthUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := mqtt.NewFakePublisher()
			pub.Connected = tt.connected
			h := newRouter(newTestGenerator(t, FaultNone, ""), mqttReadings{pub: pub}, time.Now)

			rec := serve(t, h, http.MethodGet, "/health")
			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			var got web.HealthJSON
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("health: got %q, want %q", got.Status, tt.want)
			}
		})
	}
}

func TestGenerateData(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := newRouter(newTestGenerator(t, FaultNone, ""), mqttReadings{pub: pub}, time.Now)

	rec := serve(t, h, http.MethodPost, "/generate_data")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Status != "success" || got.Data == nil || got.Data.Status != "normal" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
	if len(pub.Readings) != 1 || pub.Readings[0].SensorID != *got.Data.SensorID {
		t.Errorf("expected published reading to match response, got %+v", pub.Readings)
	}
}

func TestGenerateDataPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	h := newRouter(newTestGenerator(t, FaultNone, ""), mqttReadings{pub: pub}, time.Now)

	rec := serve(t, h, http.MethodPost, "/generate_data")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"error"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGenerateDataRequiresPost(t *testing.T) {
	h := newRouter(newTestGenerator(t, FaultNone, ""), mqttReadings{pub: mqtt.NewFakePublisher()}, time.Now)

	rec := serve(t, h, http.MethodGet, "/generate_data")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}
