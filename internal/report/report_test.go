package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
)

func TestWriteProducesStandalonePage(t *testing.T) {
	result := &sim.Result{
		History: []therm.Record{
			{Step: 0, Time: 1, Temps: []float64{25, 26}, Command: 0.1, Generation: []float64{2.5, 2.5}},
			{Step: 1, Time: 2, Temps: []float64{26, 27}, Command: 0.3, Generation: []float64{2.6, 2.6}},
		},
		Metrics:  map[string]float64{"max_temp": 27, "cooling_energy": 0.2},
		Warnings: sim.Warnings{SafetyEvents: 1},
	}

	path := filepath.Join(t.TempDir(), "run.html")
	require.NoError(t, Write(path, "liquid", "mpc", 1.0, -5, 45, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, "<svg")
	assert.Contains(t, page, "max_temp")
	assert.Contains(t, page, "liquid")
	assert.Contains(t, page, "Recovered events")
}

func TestWriteEmptyHistory(t *testing.T) {
	result := &sim.Result{Metrics: map[string]float64{}}
	path := filepath.Join(t.TempDir(), "empty.html")
	require.NoError(t, Write(path, "passive", "none", 1.0, -5, 45, result))
}
