package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

// Format identifies an export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// Findings renders findings in the requested format
func Findings(findings []*types.Finding, format Format) (string, error) {
	switch format {
	case FormatJSON:
		return ToJSON(findings)
	case FormatCSV:
		return ToCSV(findings)
	case FormatHTML:
		return ToHTML(findings)
	default:
		return "", errdefs.Wrap(errdefs.ErrInvalidInput, "unsupported export format %q", format)
	}
}

// ToJSON renders a pretty-printed JSON array with full finding fields
func ToJSON(findings []*types.Finding) (string, error) {
	if findings == nil {
		findings = []*types.Finding{}
	}
	out, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode findings: %w", err)
	}
	return string(out), nil
}

// ToCSV renders the fixed report columns, issues semicolon-joined
func ToCSV(findings []*types.Finding) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{
		"URL", "Status Code", "Content Length", "Severity",
		"Detected Issues", "Checked", "Created At",
	}); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	for _, f := range findings {
		checked := "No"
		if f.Checked {
			checked = "Yes"
		}
		if err := w.Write([]string{
			f.URL,
			fmt.Sprintf("%d", f.StatusCode),
			fmt.Sprintf("%d", f.ContentLength),
			string(f.Severity),
			strings.Join(f.DetectedIssues, "; "),
			checked,
			f.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>FuzzFleet Scan Results</title>
    <style>
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .critical { background-color: #ffcccc; }
        .high { background-color: #ffebcc; }
        .medium { background-color: #ffffcc; }
        .low { background-color: #e6ffcc; }
    </style>
</head>
<body>
    <h1>FuzzFleet Scan Results</h1>
    <table>
        <thead>
            <tr><th>URL</th><th>Target</th><th>Status Code</th><th>Content Length</th><th>Severity</th><th>Detected Issues</th><th>Checked</th><th>Created At</th></tr>
        </thead>
        <tbody>
{{- range . }}
            <tr class="{{ .SeverityClass }}"><td>{{ .URL }}</td><td>{{ .Target }}</td><td>{{ .StatusCode }}</td><td>{{ .ContentLength }}</td><td>{{ .Severity }}</td><td>{{ .Issues }}</td><td>{{ .Checked }}</td><td>{{ .CreatedAt }}</td></tr>
{{- end }}
        </tbody>
    </table>
</body>
</html>
`))

type htmlRow struct {
	SeverityClass string
	URL           string
	Target        string
	StatusCode    int
	ContentLength int64
	Severity      string
	Issues        string
	Checked       string
	CreatedAt     string
}

// ToHTML renders a single-table report with a CSS class per severity
func ToHTML(findings []*types.Finding) (string, error) {
	rows := make([]htmlRow, 0, len(findings))
	for _, f := range findings {
		checked := "No"
		if f.Checked {
			checked = "Yes"
		}
		rows = append(rows, htmlRow{
			SeverityClass: strings.ToLower(string(f.Severity)),
			URL:           f.URL,
			Target:        f.TaskTarget,
			StatusCode:    f.StatusCode,
			ContentLength: f.ContentLength,
			Severity:      string(f.Severity),
			Issues:        strings.Join(f.DetectedIssues, "; "),
			Checked:       checked,
			CreatedAt:     f.CreatedAt.Format(time.RFC3339),
		})
	}

	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, rows); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return buf.String(), nil
}
