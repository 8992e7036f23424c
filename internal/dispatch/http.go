package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/hvac-monitor/internal/logic"
)

// ValueNotApplicable is sent in place of a temperature for Sensor Silent incidents.
const ValueNotApplicable = "N/A"

// incidentValue returns the triggering temperature or ValueNotApplicable.
func incidentValue(inc logic.Incident) any {
	if inc.Value == nil {
		return ValueNotApplicable
	}
	return *inc.Value
}

// postJSON sends body as JSON and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// IncidentRecord is the body posted to the incident sink.
type IncidentRecord struct {
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Component string         `json:"component"`
	Value     any            `json:"value"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details"`
}

// IncidentSink records incidents with the logging service (POST /incidents).
type IncidentSink struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewIncidentSink creates a sink posting to baseURL + "/incidents".
// A nil client uses a default client.
func NewIncidentSink(baseURL string, client *http.Client) *IncidentSink {
	return &IncidentSink{
		url:    endpoint(baseURL, "/incidents"),
		client: defaultClient(client),
		now:    time.Now,
	}
}

func (s *IncidentSink) Name() string { return "incident-sink" }

func (s *IncidentSink) Deliver(ctx context.Context, job Job) error {
	inc := job.Incident
	details := inc.Details
	if details == nil {
		details = map[string]any{}
	}
	return postJSON(ctx, s.client, s.url, IncidentRecord{
		Timestamp: s.now().Unix(),
		Type:      string(inc.Type),
		Component: inc.SensorID,
		Value:     incidentValue(inc),
		Severity:  inc.Severity,
		Details:   details,
	})
}

// AlertRequest is the body posted to the notifier.
type AlertRequest struct {
	IncidentType string  `json:"incident_type"`
	SensorID     string  `json:"sensor_id"`
	Value        any     `json:"value"`
	Severity     string  `json:"severity"`
	RunbookLink  *string `json:"runbook_link"`
}

// Notifier forwards incidents to the alerting service (POST /alert).
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier creates a notifier posting to baseURL + "/alert".
func NewNotifier(baseURL string, client *http.Client) *Notifier {
	return &Notifier{
		url:    endpoint(baseURL, "/alert"),
		client: defaultClient(client),
	}
}

func (n *Notifier) Name() string { return "notifier" }

func (n *Notifier) Deliver(ctx context.Context, job Job) error {
	inc := job.Incident
	req := AlertRequest{
		IncidentType: string(inc.Type),
		SensorID:     inc.SensorID,
		Value:        incidentValue(inc),
		Severity:     inc.Severity,
	}
	if link := inc.Type.Runbook(); link != "" {
		req.RunbookLink = &link
	}
	return postJSON(ctx, n.client, n.url, req)
}

// RemediationRequest is the body posted to the remediator.
type RemediationRequest struct {
	IncidentType string `json:"incident_type"`
	SensorID     string `json:"sensor_id"`
	Value        any    `json:"value"`
}

// Remediator asks the automation service to act on an incident (POST /remediate).
// The response body is ignored.
type Remediator struct {
	url    string
	client *http.Client
}

// NewRemediator creates a remediator posting to baseURL + "/remediate".
func NewRemediator(baseURL string, client *http.Client) *Remediator {
	return &Remediator{
		url:    endpoint(baseURL, "/remediate"),
		client: defaultClient(client),
	}
}

func (r *Remediator) Name() string { return "remediator" }

func (r *Remediator) Deliver(ctx context.Context, job Job) error {
	inc := job.Incident
	return postJSON(ctx, r.client, r.url, RemediationRequest{
		IncidentType: string(inc.Type),
		SensorID:     inc.SensorID,
		Value:        incidentValue(inc),
	})
}
