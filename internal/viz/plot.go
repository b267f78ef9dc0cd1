package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/battherm/battherm/internal/therm"
)

// PlotHistory renders per-zone temperatures and the command trace of a
// completed run as ascii charts.
func PlotHistory(history []therm.Record, tMax float64) string {
	if len(history) == 0 {
		return "no history\n"
	}

	zones := len(history[0].Temps)
	series := make([][]float64, zones)
	for z := range series {
		series[z] = make([]float64, len(history))
	}
	cmds := make([]float64, len(history))
	peak := therm.Temps(history[0].Temps).Max()
	for i, rec := range history {
		for z, t := range rec.Temps {
			series[z][i] = t
		}
		cmds[i] = float64(rec.Command)
		if m := therm.Temps(rec.Temps).Max(); m > peak {
			peak = m
		}
	}

	var b strings.Builder
	chart := asciigraph.PlotMany(series,
		asciigraph.Height(12), asciigraph.Width(70),
		asciigraph.Caption("zone temperatures, degC"))
	b.WriteString(chart + "\n\n")

	chart = asciigraph.Plot(cmds,
		asciigraph.Height(5), asciigraph.Width(70),
		asciigraph.Caption("cooling command"))
	b.WriteString(chart + "\n\n")

	b.WriteString(fmt.Sprintf("peak %.2f degC, limit %.2f degC\n", peak, tMax))
	if peak > tMax {
		b.WriteString("safety limit exceeded\n")
	}
	return b.String()
}
