package web

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/status"
)

// Health states.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// HealthJSON is the body of GET /health.
type HealthJSON struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// checkHealth is healthy while the reading source is connected and no
// collaborator circuit breaker is open.
func checkHealth(snap status.Snapshot) HealthJSON {
	var problems []string
	if !snap.SourceConnected {
		src := snap.Config.Transport
		if src == "" {
			src = "reading source"
		}
		problems = append(problems, fmt.Sprintf("%s disconnected", src))
	}

	var open []string
	for name, state := range snap.Dispatch.Breakers {
		if state == "open" {
			open = append(open, name)
		}
	}
	slices.Sort(open)
	for _, name := range open {
		problems = append(problems, fmt.Sprintf("%s circuit open", name))
	}

	if len(problems) > 0 {
		return HealthJSON{
			Status:  HealthUnhealthy,
			Message: "Monitoring service dependency issue: " + strings.Join(problems, ", "),
		}
	}
	return HealthJSON{
		Status:  HealthHealthy,
		Message: "Monitoring service operational and connected to dependencies",
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
