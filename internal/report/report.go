// Package report renders a completed run as a standalone HTML page with
// embedded SVG charts.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
)

type pageData struct {
	Title      string
	Cooling    string
	Controller string
	Steps      int
	Dt         float64
	Current    float64
	TMax       float64
	Metrics    []metricRow
	Warnings   sim.Warnings
	AnyWarning bool
	TempChart  template.HTML
	CmdChart   template.HTML
	GenChart   template.HTML
}

type metricRow struct {
	Name  string
	Value string
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 60em; color: #222; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; margin: 1em 0; }
td, th { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
.warn { color: #b00; }
.chart { margin: 1.5em 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>Cooling</th><td>{{.Cooling}}</td></tr>
<tr><th>Controller</th><td>{{.Controller}}</td></tr>
<tr><th>Steps</th><td>{{.Steps}}</td></tr>
<tr><th>Timestep</th><td>{{.Dt}} s</td></tr>
<tr><th>Current</th><td>{{.Current}} A</td></tr>
<tr><th>Safety limit</th><td>{{.TMax}} &deg;C</td></tr>
</table>
<h2>Metrics</h2>
<table>
{{range .Metrics}}<tr><th>{{.Name}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{if .AnyWarning}}
<p class="warn">Recovered events: {{.Warnings.GenFallbacks}} generation fallbacks,
{{.Warnings.SafetyEvents}} safety events, {{.Warnings.DtAdjustments}} timestep adjustments.</p>
{{end}}
<div class="chart">{{.TempChart}}</div>
<div class="chart">{{.CmdChart}}</div>
<div class="chart">{{.GenChart}}</div>
</body>
</html>
`

// Write renders the report for one run to path.
func Write(path, cooling, controller string, dt, current, tMax float64, result *sim.Result) error {
	tempChart, err := temperatureChart(result.History, tMax)
	if err != nil {
		return err
	}
	cmdChart, err := scalarChart(result.History, "cooling command", func(r *therm.Record) float64 {
		return float64(r.Command)
	})
	if err != nil {
		return err
	}
	genChart, err := scalarChart(result.History, "heat generation, W", func(r *therm.Record) float64 {
		total := 0.0
		for _, q := range r.Generation {
			total += q
		}
		return total
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]metricRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, metricRow{Name: name, Value: fmt.Sprintf("%.4g", result.Metrics[name])})
	}

	data := pageData{
		Title:      "Battery thermal run",
		Cooling:    cooling,
		Controller: controller,
		Steps:      len(result.History),
		Dt:         dt,
		Current:    current,
		TMax:       tMax,
		Metrics:    rows,
		Warnings:   result.Warnings,
		AnyWarning: result.Warnings.Any(),
		TempChart:  tempChart,
		CmdChart:   cmdChart,
		GenChart:   genChart,
	}

	tmpl, err := template.New("report").Parse(pageTemplate)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return tmpl.Execute(file, data)
}

func temperatureChart(history []therm.Record, tMax float64) (template.HTML, error) {
	p := plot.New()
	p.Title.Text = "Zone temperatures"
	p.X.Label.Text = "time, s"
	p.Y.Label.Text = "degC"
	p.Legend.Top = true

	if len(history) == 0 {
		return renderSVG(p)
	}

	zones := len(history[0].Temps)
	for z := 0; z < zones; z++ {
		xys := make(plotter.XYs, len(history))
		for i, rec := range history {
			xys[i].X = rec.Time
			xys[i].Y = rec.Temps[z]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(z)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("zone %d", z), line)
	}

	limit := make(plotter.XYs, 2)
	limit[0].X, limit[0].Y = history[0].Time, tMax
	limit[1].X, limit[1].Y = history[len(history)-1].Time, tMax
	limitLine, err := plotter.NewLine(limit)
	if err != nil {
		return "", err
	}
	limitLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(limitLine)
	p.Legend.Add("limit", limitLine)

	return renderSVG(p)
}

func scalarChart(history []therm.Record, label string, pick func(*therm.Record) float64) (template.HTML, error) {
	p := plot.New()
	p.Title.Text = label
	p.X.Label.Text = "time, s"

	xys := make(plotter.XYs, len(history))
	for i := range history {
		xys[i].X = history[i].Time
		xys[i].Y = pick(&history[i])
	}
	if len(xys) > 0 {
		line, err := plotter.NewLine(xys)
		if err != nil {
			return "", err
		}
		p.Add(line)
	}
	return renderSVG(p)
}

func renderSVG(p *plot.Plot) (template.HTML, error) {
	c := vgsvg.New(7*vg.Inch, 3*vg.Inch)
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
