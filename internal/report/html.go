package report

import (
	"html/template"
	"io"
	"time"

	"github.com/25smoking/chanwatch/internal/topology"
)

const snapshotTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>chanwatch snapshot #{{ .Doc.Sequence }}</title>
    <style>
        body { font-family: 'Segoe UI', sans-serif; background: #f8f9fa; color: #333; margin: 0; padding: 20px; }
        .container { max-width: 1200px; margin: 0 auto; }
        .stats { display: flex; gap: 20px; margin-bottom: 20px; }
        .stat-card { flex: 1; background: #fff; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); text-align: center; }
        .stat-num { font-size: 2em; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; background: #fff; margin-bottom: 20px; }
        th, td { padding: 6px 10px; border-bottom: 1px solid #dee2e6; text-align: left; }
        tr.stale td { color: #999; }
        code { background: #eee; padding: 2px 5px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>chanwatch snapshot #{{ .Doc.Sequence }}</h1>
        <p>Generated: {{ .GeneratedAt }}</p>

        <div class="stats">
            <div class="stat-card"><div class="stat-num">{{ .Entities }}</div><div>entities</div></div>
            <div class="stat-card"><div class="stat-num">{{ len .Doc.Ports }}</div><div>ports</div></div>
            <div class="stat-card"><div class="stat-num">{{ len .Doc.Connections }}</div><div>connections</div></div>
        </div>

        <table>
            <tr><th>Entity</th><th>State</th><th>Port</th><th>Direction</th><th>Protocol</th></tr>
            {{ range .Doc.Ports }}
            <tr class="{{ .State }}"><td>{{ .Entity }}</td><td>{{ .State }}</td><td><code>{{ .Port }}</code></td><td>{{ .Direction }}</td><td>{{ .Protocol }}</td></tr>
            {{ end }}
        </table>

        <table>
            <tr><th>Source</th><th>Destination</th><th>Live</th></tr>
            {{ range .Doc.Connections }}
            <tr><td><code>{{ .Source }}</code></td><td><code>{{ .Destination }}</code></td><td>{{ .Live }}</td></tr>
            {{ else }}
            <tr><td colspan="3">no connections</td></tr>
            {{ end }}
        </table>
    </div>
</body>
</html>
`

var htmlTmpl = template.Must(template.New("snapshot").Parse(snapshotTemplate))

type htmlData struct {
	GeneratedAt string
	Entities    int
	Doc         Document
}

func WriteHTML(w io.Writer, s *topology.Snapshot) error {
	return htmlTmpl.Execute(w, htmlData{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Entities:    len(s.Entities),
		Doc:         Flatten(s),
	})
}
