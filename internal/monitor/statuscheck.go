package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// ServiceName identifies the monitor in status reports.
const ServiceName = "monitoring-service"

// SensorReading is the body returned by the sensor's GET /reading.
type SensorReading struct {
	SensorID  string   `json:"sensor_id"`
	TempF     *float64 `json:"temp_f"`
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
}

// StatusReport is the body of the monitor's GET /status.
type StatusReport struct {
	Service   string            `json:"service"`
	SensorURL string            `json:"sensor_url,omitempty"`
	SensorID  string            `json:"sensor_id,omitempty"`
	TempF     *float64          `json:"temp_f,omitempty"`
	State     logic.StatusState `json:"state"`
	Error     string            `json:"error,omitempty"`
	CheckedAt string            `json:"checked_at"`
}

// StatusChecker fetches the live sensor reading and classifies it.
type StatusChecker struct {
	sensorURL string
	client    *http.Client
	now       func() time.Time
}

// NewStatusChecker creates a checker for the sensor reading URL.
// A nil client uses one with a 5 second timeout.
func NewStatusChecker(sensorURL string, client *http.Client) *StatusChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &StatusChecker{
		sensorURL: sensorURL,
		client:    client,
		now:       time.Now,
	}
}

// Check fetches and classifies the current reading. On failure the report
// has state UNKNOWN and the error is also returned.
func (c *StatusChecker) Check(ctx context.Context) (StatusReport, error) {
	report := StatusReport{
		Service:   ServiceName,
		CheckedAt: c.now().UTC().Format(time.RFC3339Nano),
	}

	reading, err := c.fetch(ctx)
	if err != nil {
		report.State = logic.StatusUnknown
		report.Error = err.Error()
		return report, err
	}

	temp := *reading.TempF
	report.SensorURL = c.sensorURL
	report.SensorID = reading.SensorID
	report.TempF = &temp
	report.State = logic.Classify(temp)
	return report, nil
}

func (c *StatusChecker) fetch(ctx context.Context) (SensorReading, error) {
	var reading SensorReading

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sensorURL, nil)
	if err != nil {
		return reading, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return reading, fmt.Errorf("get %s: %w", c.sensorURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return reading, fmt.Errorf("get %s: status %d", c.sensorURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return reading, fmt.Errorf("read sensor response: %w", err)
	}
	if err := json.Unmarshal(data, &reading); err != nil {
		return reading, fmt.Errorf("invalid sensor response: %w", err)
	}
	if reading.TempF == nil {
		return reading, fmt.Errorf("invalid sensor response: missing temp_f")
	}
	return reading, nil
}
