package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/hvac-monitor/internal/logging"
)

// Alert is a message for the Slack notifier.
type Alert struct {
	IncidentType string
	SensorID     string
	Value        any // float64 or string
	Severity     string
	Runbook      string
	At           time.Time
}

// SlackPayload is the incoming-webhook body.
type SlackPayload struct {
	Text string `json:"text"`
}

// FormatSlackMessage renders an alert in Slack mrkdwn.
func FormatSlackMessage(a Alert) string {
	runbook := a.Runbook
	if runbook == "" {
		runbook = "#"
	}
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: *%s ALERT: %s* :rotating_light:\n", strings.ToUpper(a.Severity), a.IncidentType)
	fmt.Fprintf(&b, "> *Component:* `%s`\n", a.SensorID)
	fmt.Fprintf(&b, "> *Value:* `%s`\n", formatValue(a.Value))
	fmt.Fprintf(&b, "> *Runbook:* <%s|Click here for guidance>\n", runbook)
	fmt.Fprintf(&b, "> *Timestamp:* %s", a.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ValueNotApplicable
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// SlackNotifier posts alerts to a Slack incoming webhook, rate limited.
// An empty webhook URL turns Notify into a logged no-op.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewSlackNotifier creates a notifier allowing perSecond messages with the given burst.
func NewSlackNotifier(webhookURL string, perSecond float64, burst int, client *http.Client) *SlackNotifier {
	if burst < 1 {
		burst = 1
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     defaultClient(client),
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Configured reports whether a webhook URL is set.
func (s *SlackNotifier) Configured() bool {
	return s.webhookURL != ""
}

// Notify sends the alert, waiting for the rate limiter if necessary.
func (s *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	msg := FormatSlackMessage(a)
	if !s.Configured() {
		logging.Info().
			Str("sensor_id", a.SensorID).
			Str("incident_type", a.IncidentType).
			Msg("slack webhook not configured, skipping notification")
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack rate limit: %w", err)
	}
	if err := postJSON(ctx, s.client, s.webhookURL, SlackPayload{Text: msg}); err != nil {
		return fmt.Errorf("slack notification: %w", err)
	}
	logging.Info().
		Str("sensor_id", a.SensorID).
		Str("incident_type", a.IncidentType).
		Msg("slack notification sent")
	return nil
}
