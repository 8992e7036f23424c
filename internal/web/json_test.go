package web

import (
	"strings"
	"testing"

	"github.com/sweeney/hvac-monitor/internal/status"
)

func TestCheckHealthListsOpenBreakersSorted(t *testing.T) {
	h := checkHealth(status.Snapshot{
		SourceConnected: true,
		Dispatch: status.DispatchStats{Breakers: map[string]string{
			"remediator":    "open",
			"incident-sink": "open",
			"notifier":      "half-open",
		}},
	})
	if h.Status != HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %s", h.Status)
	}
	if !strings.HasSuffix(h.Message, "incident-sink circuit open, remediator circuit open") {
		t.Errorf("unexpected message: %s", h.Message)
	}
}

func TestCheckHealthHalfOpenIsHealthy(t *testing.T) {
	h := checkHealth(status.Snapshot{
		SourceConnected: true,
		Dispatch:        status.DispatchStats{Breakers: map[string]string{"notifier": "half-open"}},
	})
	if h.Status != HealthHealthy {
		t.Errorf("expected healthy, got %s: %s", h.Status, h.Message)
	}
}
