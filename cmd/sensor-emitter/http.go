package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/monitor"
	"github.com/sweeney/hvac-monitor/internal/queue"
	"github.com/sweeney/hvac-monitor/internal/web"
)

// readingSensorID is the sensor reported by GET /reading.
const readingSensorID = "sensor-1"

// GenerateResponse is the body of POST /generate_data.
type GenerateResponse struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Data    *queue.ReadingMessage `json:"data,omitempty"`
}

func newRouter(gen *Generator, pub readingPublisher, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/reading", func(w http.ResponseWriter, _ *http.Request) {
		temp := gen.Temperature()
		writeJSON(w, http.StatusOK, monitor.SensorReading{
			SensorID:  readingSensorID,
			TempF:     &temp,
			Status:    string(logic.StatusOK),
			Timestamp: now().UTC().Format(time.RFC3339),
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !pub.IsConnected() {
			writeJSON(w, http.StatusInternalServerError, web.HealthJSON{
				Status:  web.HealthUnhealthy,
				Message: "Sensor service cannot connect to message queue",
			})
			return
		}
		writeJSON(w, http.StatusOK, web.HealthJSON{
			Status:  web.HealthHealthy,
			Message: "Sensor service is operational and connected to message queue",
		})
	})

	r.Post("/generate_data", func(w http.ResponseWriter, _ *http.Request) {
		reading, err := emit(gen, pub)
		if err != nil {
			logging.Warn().Err(err).Msg("generate_data publish failed")
			writeJSON(w, http.StatusInternalServerError, GenerateResponse{
				Status:  "error",
				Message: err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, GenerateResponse{
			Status:  "success",
			Message: "Data generated and published",
			Data: &queue.ReadingMessage{
				SensorID:    &reading.SensorID,
				Temperature: &reading.Temperature,
				Timestamp:   &reading.Timestamp,
				Status:      "normal",
			},
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
