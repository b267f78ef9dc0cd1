package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/battherm/battherm/internal/therm"
)

func rec(temps []float64, cmd float64) *therm.Record {
	return &therm.Record{Temps: temps, Command: therm.Command(cmd)}
}

func TestMaxTemp(t *testing.T) {
	m := NewMaxTemp()
	assert.Equal(t, 0.0, m.Value())

	m.Observe(rec([]float64{25, 30}, 0))
	m.Observe(rec([]float64{28, 27}, 0))
	assert.Equal(t, 30.0, m.Value())

	m.Reset()
	assert.Equal(t, 0.0, m.Value())
}

func TestCoolingEnergy(t *testing.T) {
	m := NewCoolingEnergy(2.0)
	m.Observe(rec(nil, 0.5))
	m.Observe(rec(nil, 1.0))
	assert.InDelta(t, 0.5*0.5*2+1*1*2, m.Value(), 1e-12)
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	assert.Equal(t, 0.0, m.Value())
	m.Observe(rec(nil, -0.4))
	m.Observe(rec(nil, 0.8))
	assert.InDelta(t, 0.6, m.Value(), 1e-12)
}

func TestSafetyMargin(t *testing.T) {
	m := NewSafetyMargin(45)
	assert.Equal(t, 1.0, m.Value())

	m.Observe(rec([]float64{40, 41}, 0))
	m.Observe(rec([]float64{44, 46}, 0))
	m.Observe(rec([]float64{43, 44}, 0))
	assert.InDelta(t, 2.0/3.0, m.Value(), 1e-12)
}
