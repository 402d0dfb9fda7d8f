package export

import (
	"bytes"
	"html/template"
	"time"
)

var summaryTemplate = template.Must(template.New("summary").Parse(summaryHTML))

// TemplateData holds data for summary template rendering
type TemplateData struct {
	AreaName      string
	GeneratedAt   time.Time
	TotalPlots    int
	AllottedPlots int
	Plots         []TemplatePlot
	Leases        []TemplateLease
	Violations    []TemplateViolation
}

type TemplatePlot struct {
	PlotID        int
	Bought        bool
	BoughtBy      string
	LeasePrice    float64
	LeaseDuration int
}

type TemplateLease struct {
	PlotID       int
	OwnerEmail   string
	Status       string
	LeaseEndDate time.Time
	BidPrice     float64
}

type TemplateViolation struct {
	PlotID     string
	OwnerEmail string
	Flagged    bool
	Comments   string
}

// RenderSummaryHTML renders the area summary template with provided data
func RenderSummaryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.AreaName}} allocation summary</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #1a6b3c; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; font-size: 0.9em; }
    th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
    th { background: #f0f4f0; }
    .flagged { color: #a33; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.AreaName}} allocation summary</h1>
  <div class="meta">
    Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}} |
    {{.AllottedPlots}} of {{.TotalPlots}} plots allotted
  </div>

  <h2>Plot registry</h2>
  <table>
    <tr><th>Plot</th><th>Status</th><th>Holder</th><th>Lease price</th><th>Duration (years)</th></tr>
    {{range .Plots}}
    <tr>
      <td>{{.PlotID}}</td>
      <td>{{if .Bought}}allotted{{else}}available{{end}}</td>
      <td>{{.BoughtBy}}</td>
      <td>{{printf "%.2f" .LeasePrice}}</td>
      <td>{{.LeaseDuration}}</td>
    </tr>
    {{end}}
  </table>

  {{if .Leases}}
  <h2>Active leases</h2>
  <table>
    <tr><th>Plot</th><th>Lessee</th><th>Status</th><th>Ends</th><th>Bid price</th></tr>
    {{range .Leases}}
    <tr>
      <td>{{.PlotID}}</td>
      <td>{{.OwnerEmail}}</td>
      <td>{{.Status}}</td>
      <td>{{.LeaseEndDate.Format "Jan 2, 2006"}}</td>
      <td>{{printf "%.2f" .BidPrice}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}

  {{if .Violations}}
  <h2>Violations</h2>
  <table>
    <tr><th>Plot</th><th>Owner</th><th>Status</th><th>Remarks</th></tr>
    {{range .Violations}}
    <tr>
      <td>{{.PlotID}}</td>
      <td>{{.OwnerEmail}}</td>
      <td>{{if .Flagged}}<span class="flagged">flagged</span>{{else}}cleared{{end}}</td>
      <td>{{.Comments}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
