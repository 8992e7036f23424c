package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/dispatch"
	"github.com/sweeney/hvac-monitor/internal/logging"
	"github.com/sweeney/hvac-monitor/internal/logic"
	"github.com/sweeney/hvac-monitor/internal/metrics"
)

// AlertType labels alerts raised from polled status snapshots.
const AlertType = "Temperature Alarm"

// Notifier delivers alerts. Implemented by *dispatch.SlackNotifier.
type Notifier interface {
	Notify(ctx context.Context, a dispatch.Alert) error
}

// AlertPoller polls a status URL and forwards ALARM snapshots that pass the
// AlertGate to a notifier.
type AlertPoller struct {
	statusURL string
	interval  time.Duration
	client    *http.Client
	gate      *logic.AlertGate
	notifier  Notifier
	now       func() time.Time
}

// NewAlertPoller creates a poller. A nil client uses one with a 5 second timeout.
func NewAlertPoller(statusURL string, interval time.Duration, gate *logic.AlertGate, notifier Notifier, client *http.Client) *AlertPoller {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &AlertPoller{
		statusURL: statusURL,
		interval:  interval,
		client:    client,
		gate:      gate,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Serve implements suture.Service.
func (p *AlertPoller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logging.Info().
		Str("status_url", p.statusURL).
		Dur("interval", p.interval).
		Msg("alert poller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				logging.Warn().Err(err).Str("status_url", p.statusURL).Msg("status poll failed")
			}
		}
	}
}

func (p *AlertPoller) String() string {
	return "alert-poller"
}

// PollOnce fetches one snapshot and reports whether an alert was issued.
func (p *AlertPoller) PollOnce(ctx context.Context) (bool, error) {
	report, err := p.fetch(ctx)
	if err != nil {
		metrics.StatusPollsTotal.WithLabelValues(string(logic.StatusUnknown)).Inc()
		return false, err
	}
	metrics.StatusPollsTotal.WithLabelValues(string(report.State)).Inc()

	if report.TempF == nil || report.SensorID == "" {
		return false, nil
	}

	now := p.now()
	if !p.gate.Observe(report.SensorID, report.State, *report.TempF, now) {
		return false, nil
	}

	metrics.AlertsIssued.Inc()
	logging.Warn().
		Str("sensor_id", report.SensorID).
		Float64("temp_f", *report.TempF).
		Msg("temperature alarm")

	err = p.notifier.Notify(ctx, dispatch.Alert{
		IncidentType: AlertType,
		SensorID:     report.SensorID,
		Value:        *report.TempF,
		Severity:     logic.SeverityCritical,
		Runbook:      logic.IncidentHighTemperature.Runbook(),
		At:           now,
	})
	if err != nil {
		return true, fmt.Errorf("notify: %w", err)
	}
	return true, nil
}

// fetch decodes the status body. A 503 with an UNKNOWN report is not an error.
func (p *AlertPoller) fetch(ctx context.Context) (StatusReport, error) {
	var report StatusReport

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statusURL, nil)
	if err != nil {
		return report, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return report, fmt.Errorf("get %s: %w", p.statusURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return report, fmt.Errorf("read status: %w", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("decode status (%d): %w", resp.StatusCode, err)
	}
	if report.State == "" {
		return report, fmt.Errorf("status response missing state (%d)", resp.StatusCode)
	}
	return report, nil
}
