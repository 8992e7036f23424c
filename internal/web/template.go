package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/hvac-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"unix": func(ts int64) string {
		return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>HVAC Monitor</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.hot { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.open { color: red; }
</style>
</head>
<body>
<h1>HVAC Monitor</h1>

<h2>Sensors</h2>
{{if .Sensors}}<table>
<tr><td><b>Sensor</b></td><td><b>Last seen</b></td><td><b>°F</b></td><td><b>Readings</b></td><td><b>High since</b></td></tr>
{{range .Sensors}}<tr><td>{{.SensorID}}{{if not .SilenceTracked}} (silent){{end}}</td><td>{{unix .LastSeen}}</td><td{{if .StreakOpen}} class="hot"{{end}}>{{printf "%.2f" .LastTemperature}}</td><td>{{.Readings}}</td><td>{{if .StreakOpen}}{{unix .StreakSince}}{{else}}-{{end}}</td></tr>
{{end}}</table>{{else}}<p>No readings yet.</p>{{end}}

<h2>Incidents</h2>
<table>
<tr><th>High Temperature</th><td>{{.Incidents.HighTemperature}}</td></tr>
<tr><th>Erratic Sensor Data</th><td>{{.Incidents.Erratic}}</td></tr>
<tr><th>Sensor Silent</th><td>{{.Incidents.Silent}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Source</th><td class="{{if .SourceConnected}}connected{{else}}disconnected{{end}}">{{.Config.Transport}} {{if .SourceConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>URL</th><td>{{.Config.Source}}</td></tr>
<tr><th>Readings</th><td>{{.Readings.Accepted}} accepted, {{.Readings.Rejected}} rejected, {{.Readings.Requeued}} requeued</td></tr>
<tr><th>Dispatch queue</th><td>{{.Dispatch.Queued}} queued, {{.Dispatch.Dropped}} dropped</td></tr>
{{range $name, $state := .Dispatch.Breakers}}<tr><th>{{$name}}</th><td{{if eq $state "open"}} class="open"{{end}}>{{$state}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Last sweep</th><td>{{if .LastSweep.IsZero}}never{{else}}{{.LastSweep.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
<tr><th>High temperature</th><td>&gt; {{.Config.HighTemp}}°F for {{.Config.HighTempDurationS}}s</td></tr>
<tr><th>Erratic</th><td>&gt; {{.Config.ErraticChange}}°F within {{.Config.ErraticWindowS}}s</td></tr>
<tr><th>Silence</th><td>{{.Config.SilenceThresholdS}}s, swept every {{.Config.SweepIntervalS}}s</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/status">Status</a> · <a href="/health">Health</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	_ = indexTmpl.Execute(w, data)
}
