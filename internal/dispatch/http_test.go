package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/gpio"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/mqtt"
)

type capturedRequest struct {
	path string
	body map[string]any
}

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		reqs <- capturedRequest{path: r.URL.Path, body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func silentIncident() logic.Incident {
	return logic.Incident{
		Type:       logic.IncidentSensorSilent,
		SensorID:   "sensor-3",
		Severity:   logic.SeverityCritical,
		Details:    map[string]any{"last_seen": int64(1000)},
		DetectedAt: 1121,
	}
}

func TestIncidentSinkBody(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusCreated)
	sink := NewIncidentSink(srv.URL+"/", srv.Client())
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }

	if err := sink.Deliver(context.Background(), Job{Incident: highTemp("sensor-1")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := <-reqs
	if got.path != "/incidents" {
		t.Errorf("expected /incidents, got %s", got.path)
	}
	if got.body["timestamp"] != float64(1700000000) {
		t.Errorf("expected wall-clock timestamp, got %v", got.body["timestamp"])
	}
	if got.body["type"] != "High Temperature" {
		t.Errorf("expected High Temperature, got %v", got.body["type"])
	}
	if got.body["component"] != "sensor-1" {
		t.Errorf("expected component sensor-1, got %v", got.body["component"])
	}
	if got.body["value"] != float64(85) {
		t.Errorf("expected value 85, got %v", got.body["value"])
	}
	if got.body["severity"] != "critical" {
		t.Errorf("expected severity critical, got %v", got.body["severity"])
	}
	if _, ok := got.body["details"].(map[string]any); !ok {
		t.Errorf("expected details object, got %v", got.body["details"])
	}
}

func TestIncidentSinkSilentValue(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusCreated)
	sink := NewIncidentSink(srv.URL, srv.Client())

	if err := sink.Deliver(context.Background(), Job{Incident: silentIncident()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := <-reqs
	if got.body["value"] != "N/A" {
		t.Errorf("expected N/A, got %v", got.body["value"])
	}
	details := got.body["details"].(map[string]any)
	if details["last_seen"] != float64(1000) {
		t.Errorf("expected last_seen 1000, got %v", details["last_seen"])
	}
}

func TestNotifierBody(t *testing.T) {
	tests := []struct {
		name    string
		inc     logic.Incident
		runbook any
	}{
		{"high temperature", highTemp("sensor-1"), "/docs/runbooks/high-temp-alarm.md"},
		{"silent", silentIncident(), "/docs/runbooks/sensor-silent-alarm.md"},
		{"erratic", logic.Incident{Type: logic.IncidentErraticSensorData, SensorID: "s", Value: floatPtr(81), Severity: "critical"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, reqs := captureServer(t, http.StatusOK)
			n := NewNotifier(srv.URL, srv.Client())
			if err := n.Deliver(context.Background(), Job{Incident: tt.inc}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := <-reqs
			if got.path != "/alert" {
				t.Errorf("expected /alert, got %s", got.path)
			}
			if got.body["incident_type"] != string(tt.inc.Type) {
				t.Errorf("expected %s, got %v", tt.inc.Type, got.body["incident_type"])
			}
			if got.body["runbook_link"] != tt.runbook {
				t.Errorf("expected runbook %v, got %v", tt.runbook, got.body["runbook_link"])
			}
			if _, ok := got.body["runbook_link"]; !ok {
				t.Error("expected runbook_link key present")
			}
		})
	}
}

func TestRemediatorBody(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK)
	r := NewRemediator(srv.URL, srv.Client())

	if err := r.Deliver(context.Background(), Job{Incident: highTemp("sensor-2")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := <-reqs
	if got.path != "/remediate" {
		t.Errorf("expected /remediate, got %s", got.path)
	}
	if len(got.body) != 3 {
		t.Errorf("expected 3 fields, got %v", got.body)
	}
	if got.body["sensor_id"] != "sensor-2" {
		t.Errorf("expected sensor-2, got %v", got.body["sensor_id"])
	}
}

func TestPostJSONNon2xxIsError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)
	err := NewRemediator(srv.URL, srv.Client()).Deliver(context.Background(), Job{Incident: highTemp("s")})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestPostJSONUnreachable(t *testing.T) {
	n := NewNotifier("http://127.0.0.1:1", nil)
	if err := n.Deliver(context.Background(), Job{Incident: highTemp("s")}); err == nil {
		t.Fatal("expected error for unreachable collaborator")
	}
}

func TestIncidentPublisher(t *testing.T) {
	fake := mqtt.NewFakePublisher()
	p := NewIncidentPublisher(fake)

	if err := p.Deliver(context.Background(), Job{ID: "job-1", Incident: highTemp("s")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.IncidentCount() != 1 {
		t.Fatalf("expected 1 incident, got %d", fake.IncidentCount())
	}
	if fake.IncidentIDs[0] != "job-1" {
		t.Errorf("expected ID job-1, got %s", fake.IncidentIDs[0])
	}
}

func TestRelayRemediatorHighTemperature(t *testing.T) {
	relay := gpio.NewFakeRelay()
	r := NewRelayRemediator(relay, 30*time.Millisecond)

	if err := r.Deliver(context.Background(), Job{Incident: highTemp("s")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !relay.On() {
		t.Fatal("expected relay energized")
	}

	waitFor(t, func() bool { return !relay.On() })
	sw := relay.Switches()
	if len(sw) != 2 || !sw[0] || sw[1] {
		t.Errorf("expected [true false], got %v", sw)
	}
}

func TestRelayRemediatorIgnoresOtherIncidents(t *testing.T) {
	relay := gpio.NewFakeRelay()
	r := NewRelayRemediator(relay, time.Second)

	if err := r.Deliver(context.Background(), Job{Incident: silentIncident()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relay.Switches()) != 0 {
		t.Errorf("expected no switching, got %v", relay.Switches())
	}
}

func TestRelayRemediatorExtendsHold(t *testing.T) {
	relay := gpio.NewFakeRelay()
	r := NewRelayRemediator(relay, 80*time.Millisecond)

	_ = r.Deliver(context.Background(), Job{Incident: highTemp("s")})
	time.Sleep(50 * time.Millisecond)
	_ = r.Deliver(context.Background(), Job{Incident: highTemp("s")})
	time.Sleep(50 * time.Millisecond)

	if !relay.On() {
		t.Error("expected relay still energized after second incident")
	}
	waitFor(t, func() bool { return !relay.On() })
}

func TestRelayRemediatorSetError(t *testing.T) {
	relay := gpio.NewFakeRelay()
	relay.SetError = io.ErrClosedPipe
	r := NewRelayRemediator(relay, time.Second)

	if err := r.Deliver(context.Background(), Job{Incident: highTemp("s")}); err == nil {
		t.Fatal("expected error from relay")
	}
}

func TestRelayRemediatorClose(t *testing.T) {
	relay := gpio.NewFakeRelay()
	r := NewRelayRemediator(relay, time.Hour)
	_ = r.Deliver(context.Background(), Job{Incident: highTemp("s")})

	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !relay.Closed() || relay.On() {
		t.Error("expected relay closed and released")
	}
}
