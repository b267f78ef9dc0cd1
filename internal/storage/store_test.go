package storage

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		History: []therm.Record{
			{Step: 0, Time: 1, Temps: []float64{25.125, 25.0625}, Command: 0.25,
				Generation: []float64{2.5, 2.5}, Source: therm.SourceOhmic},
			{Step: 1, Time: 2, Temps: []float64{25.3331235, 25.125}, Command: 0.5,
				Generation: []float64{2.5061, 2.5}, Source: therm.SourceElectrochem, Fallback: true},
		},
		Metrics:  map[string]float64{"max_temp": 25.3331235},
		Warnings: sim.Warnings{GenFallbacks: 1},
	}
}

func TestSaveListLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	runID, err := st.Save("liquid", "mpc", 2, 1.0, -5, 45, sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	runs, err := st.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "liquid", runs[0].Cooling)
	assert.Equal(t, 2, runs[0].Steps)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "mpc", meta.Controller)
	assert.Equal(t, 45.0, meta.TMax)
	assert.Equal(t, 25.3331235, meta.Metrics["max_temp"])
	assert.Equal(t, 1, meta.Warnings.GenFallbacks)
}

func TestHistoryRoundTrip(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	want := sampleResult()
	runID, err := st.Save("pcm", "none", 2, 1.0, -5, 45, want)
	require.NoError(t, err)

	got, err := st.LoadHistory(runID)
	require.NoError(t, err)
	require.Len(t, got, len(want.History))

	for i, rec := range got {
		assert.Equal(t, want.History[i].Step, rec.Step)
		assert.Equal(t, want.History[i].Time, rec.Time)
		assert.Equal(t, want.History[i].Command, rec.Command)
		assert.Equal(t, want.History[i].Source, rec.Source)
		assert.Equal(t, want.History[i].Fallback, rec.Fallback)
		// Exact float round trip through the CSV encoding.
		assert.Equal(t, want.History[i].Temps, []float64(rec.Temps))
		assert.Equal(t, want.History[i].Generation, rec.Generation)
	}
}

func TestListEmptyDir(t *testing.T) {
	st := New(t.TempDir() + "/never-created")
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	err := ExportJSON(&buf, "passive", "none", 2, 1.0, -5, sampleResult())
	require.NoError(t, err)

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "passive", data.Cooling)
	assert.Equal(t, 2, data.Steps)
	require.Len(t, data.History, 2)
	assert.Equal(t, therm.Command(0.5), data.History[1].Command)
	assert.True(t, data.History[1].Fallback)
}
