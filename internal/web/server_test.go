package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/monitor"
	"github.com/sweeney/hvac-monitor/internal/queue"
	"github.com/sweeney/hvac-monitor/internal/status"
)

type fakeConn struct{ connected atomic.Bool }

func (f *fakeConn) IsConnected() bool { return f.connected.Load() }

type fakeDispatch struct {
	mu    sync.Mutex
	stats status.DispatchStats
}

func (f *fakeDispatch) Stats() status.DispatchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeDispatch) setBreakers(b map[string]string) {
	f.mu.Lock()
	f.stats.Breakers = b
	f.mu.Unlock()
}

type fakeChecker struct {
	mu     sync.Mutex
	report monitor.StatusReport
	err    error
}

func (f *fakeChecker) Check(context.Context) (monitor.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.err
}

func (f *fakeChecker) set(report monitor.StatusReport, err error) {
	f.mu.Lock()
	f.report, f.err = report, err
	f.mu.Unlock()
}

type testEnv struct {
	ts       *httptest.Server
	tracker  *status.Tracker
	engine   *logic.Engine
	conn     *fakeConn
	dispatch *fakeDispatch
	checker  *fakeChecker
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Transport:         "mqtt",
		Source:            "tcp://localhost:1883",
		HighTemp:          80,
		HighTempDurationS: 300,
		ErraticChange:     10,
		ErraticWindowS:    10,
		SilenceThresholdS: 120,
		SweepIntervalS:    30,
		HTTPAddr:          ":5001",
	}
	store := logic.NewStore()
	env := &testEnv{
		tracker:  status.NewTracker(start, cfg),
		engine:   logic.NewEngine(store, logic.DefaultThresholds()),
		conn:     &fakeConn{},
		dispatch: &fakeDispatch{stats: status.DispatchStats{Breakers: map[string]string{"notifier": "closed"}}},
		checker:  &fakeChecker{},
	}
	env.conn.connected.Store(true)
	env.tracker.Attach(store, env.conn, env.dispatch)

	srv := New(":0", env.tracker, env.checker)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode JSON from %s: %v (%s)", url, err, data)
	}
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.engine.Ingest(logic.Reading{SensorID: "sensor-1", Temperature: 85, Timestamp: 1000})
	env.tracker.RecordReading(queue.Ack)

	var sj status.StatusJSON
	resp := getJSON(t, env.ts.URL+"/index.json", &sj)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if !sj.Status.Source.Connected {
		t.Error("expected source connected")
	}
	if sj.Status.Source.URL != "tcp://localhost:1883" {
		t.Errorf("Source.URL: got %q", sj.Status.Source.URL)
	}
	if sj.Status.Readings.Accepted != 1 {
		t.Errorf("Readings.Accepted: got %d, want 1", sj.Status.Readings.Accepted)
	}
	if len(sj.Status.Sensors) != 1 || sj.Status.Sensors[0].SensorID != "sensor-1" {
		t.Fatalf("unexpected sensors: %+v", sj.Status.Sensors)
	}
	if sj.Status.Sensors[0].StreakSince == nil {
		t.Error("expected open high temperature streak")
	}
	if sj.Status.Config.HighTemp != 80 {
		t.Errorf("Config.HighTemp: got %v, want 80", sj.Status.Config.HighTemp)
	}
}

func TestHealthHealthy(t *testing.T) {
	env := newTestServer(t)

	var h HealthJSON
	resp := getJSON(t, env.ts.URL+"/health", &h)
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if h.Status != HealthHealthy {
		t.Errorf("expected healthy, got %q", h.Status)
	}
}

func TestHealthUnhealthy(t *testing.T) {
	tests := []struct {
		name     string
		connect  bool
		breakers map[string]string
		want     string
	}{
		{"source disconnected", false, nil, "mqtt disconnected"},
		{"breaker open", true, map[string]string{"notifier": "open", "remediator": "closed"}, "notifier circuit open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)
			env.conn.connected.Store(tt.connect)
			env.dispatch.setBreakers(tt.breakers)

			var h HealthJSON
			resp := getJSON(t, env.ts.URL+"/health", &h)
			if resp.StatusCode != 500 {
				t.Errorf("status: got %d, want 500", resp.StatusCode)
			}
			if h.Status != HealthUnhealthy {
				t.Errorf("expected unhealthy, got %q", h.Status)
			}
			if !strings.Contains(h.Message, tt.want) {
				t.Errorf("message %q does not mention %q", h.Message, tt.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestServer(t)
	temp := 82.0
	env.checker.set(monitor.StatusReport{
		Service:   monitor.ServiceName,
		SensorURL: "http://localhost:5000/reading",
		SensorID:  "sensor-1",
		TempF:     &temp,
		State:     logic.StatusAlarm,
		CheckedAt: "2026-01-01T00:00:00Z",
	}, nil)

	var got map[string]any
	resp := getJSON(t, env.ts.URL+"/status", &got)
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if got["state"] != "ALARM" || got["temp_f"] != 82.0 || got["service"] != "monitoring-service" {
		t.Errorf("unexpected body: %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Error("expected no error field")
	}
}

func TestStatusEndpointUnavailable(t *testing.T) {
	env := newTestServer(t)
	env.checker.set(monitor.StatusReport{
		Service: monitor.ServiceName,
		State:   logic.StatusUnknown,
		Error:   "connection refused",
	}, errors.New("connection refused"))

	var got map[string]any
	resp := getJSON(t, env.ts.URL+"/status", &got)
	if resp.StatusCode != 503 {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
	if got["state"] != "UNKNOWN" || got["error"] != "connection refused" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestStatusDisabledWithoutChecker(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected default Go collectors in metrics output")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	env := newTestServer(t)
	env.engine.Ingest(logic.Reading{SensorID: "sensor-7", Temperature: 72.25, Timestamp: 1000})

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	if !strings.Contains(string(body), "sensor-7") || !strings.Contains(string(body), "72.25") {
		t.Error("expected sensor row in HTML")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	env := newTestServer(t)

	var sj1 status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj1)
	if len(sj1.Status.Sensors) != 0 {
		t.Error("expected no sensors initially")
	}

	env.engine.Ingest(logic.Reading{SensorID: "s", Temperature: 70, Timestamp: 1000})
	env.engine.Ingest(logic.Reading{SensorID: "s", Temperature: 81, Timestamp: 1009})
	env.conn.connected.Store(false)

	var sj2 status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj2)
	if sj2.Status.Incidents.Erratic != 1 {
		t.Errorf("Erratic: got %d, want 1", sj2.Status.Incidents.Erratic)
	}
	if sj2.Status.Source.Connected {
		t.Error("expected source disconnected after update")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", status.NewTracker(time.Now(), status.Config{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
