package therm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempsCloneIndependent(t *testing.T) {
	orig := Temps{25, 26, 27}
	c := orig.Clone()
	c[0] = 99

	assert.Equal(t, 25.0, orig[0])
	assert.Equal(t, 99.0, c[0])
}

func TestTempsIsValid(t *testing.T) {
	assert.True(t, Temps{25, 30}.IsValid())
	assert.False(t, Temps{25, math.NaN()}.IsValid())
	assert.False(t, Temps{math.Inf(1)}.IsValid())
}

func TestTempsAggregates(t *testing.T) {
	temps := Temps{20, 30, 40}
	assert.Equal(t, 30.0, temps.Mean())
	assert.Equal(t, 40.0, temps.Max())
	assert.Equal(t, 20.0, temps.Min())
	assert.Equal(t, 0.0, Temps{}.Mean())
}

func TestNewState(t *testing.T) {
	st := NewState(3, 25)
	require.Equal(t, 3, st.Zones())
	assert.Equal(t, Temps{25, 25, 25}, st.Temps)
	assert.Equal(t, 25.0, st.Ambient)
	assert.Equal(t, 0.0, st.Time)
}

func TestStateCloneIndependent(t *testing.T) {
	st := NewState(2, 25)
	c := st.Clone()
	c.Temps[0] = 50
	c.Time = 10

	assert.Equal(t, 25.0, st.Temps[0])
	assert.Equal(t, 0.0, st.Time)
}

func TestActuatorBounds(t *testing.T) {
	b := ActuatorBounds{Min: 0, Max: 1}
	assert.True(t, b.Contains(0.5))
	assert.True(t, b.Contains(0))
	assert.False(t, b.Contains(1.1))
	assert.Equal(t, Command(1), b.Clamp(2))
	assert.Equal(t, Command(0), b.Clamp(-1))
	assert.Equal(t, Command(0.3), b.Clamp(0.3))
}

func TestGenerationCloneAndTotal(t *testing.T) {
	g := &Generation{PerZone: []float64{1, 2, 3}, Source: SourceOhmic, Converged: true}
	assert.Equal(t, 6.0, g.Total())

	c := g.Clone()
	c.PerZone[0] = 100
	assert.Equal(t, 1.0, g.PerZone[0])
	assert.Equal(t, SourceOhmic, c.Source)
}

func TestStepErrorWraps(t *testing.T) {
	err := &StepError{Step: 4, Time: 4.0, Err: ErrNumericalInstability}
	assert.True(t, errors.Is(err, ErrNumericalInstability))
	assert.Contains(t, err.Error(), "step 4")
}
