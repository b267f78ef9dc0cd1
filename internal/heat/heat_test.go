package heat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/p2d"
	"github.com/battherm/battherm/internal/therm"
)

type stubSolver struct {
	result *p2d.Result
	err    error
	delay  time.Duration
}

func (s *stubSolver) Solve(ctx context.Context, current float64, temps therm.Temps) (*p2d.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", therm.ErrSolverNonConvergence, ctx.Err())
		}
	}
	return s.result, s.err
}

func TestOhmicGeneration(t *testing.T) {
	o, err := NewOhmic(OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)

	st := therm.NewState(3, 25)
	gen, err := o.Generate(context.Background(), -5, st)
	require.NoError(t, err)

	// I^2 R = 25 * 0.1 = 2.5 W per zone at the reference temperature.
	require.Len(t, gen.PerZone, 3)
	for _, q := range gen.PerZone {
		assert.InDelta(t, 2.5, q, 1e-12)
	}
	assert.Equal(t, therm.SourceOhmic, gen.Source)
	assert.True(t, gen.Converged)
}

func TestOhmicArrheniusGrowsWithTemperature(t *testing.T) {
	o, err := NewOhmic(OhmicParams{Resistance: 0.1, ArrheniusCoeff: 0.01, RefTemp: 25})
	require.NoError(t, err)

	st := therm.NewState(1, 25)
	st.Temps[0] = 35

	gen, err := o.Generate(context.Background(), -5, st)
	require.NoError(t, err)
	assert.InDelta(t, 2.5*math.Exp(0.1), gen.PerZone[0], 1e-9)
}

func TestOhmicRejectsBadInput(t *testing.T) {
	_, err := NewOhmic(OhmicParams{Resistance: 0})
	assert.ErrorIs(t, err, therm.ErrInvalidInput)

	o, err := NewOhmic(OhmicParams{Resistance: 0.1})
	require.NoError(t, err)

	st := therm.NewState(1, 25)
	_, err = o.Generate(context.Background(), math.NaN(), st)
	assert.ErrorIs(t, err, therm.ErrInvalidInput)

	st.Temps[0] = math.Inf(1)
	_, err = o.Generate(context.Background(), -5, st)
	assert.ErrorIs(t, err, therm.ErrInvalidInput)
}

func TestElectrochemAddsSolverHeat(t *testing.T) {
	ohmic, err := NewOhmic(OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)

	solver := &stubSolver{result: &p2d.Result{PerZone: []float64{1, 1}, Converged: true}}
	e := NewElectrochem(ohmic, solver, 0)

	st := therm.NewState(2, 25)
	gen, err := e.Generate(context.Background(), -5, st)
	require.NoError(t, err)

	assert.InDelta(t, 3.5, gen.PerZone[0], 1e-12)
	assert.Equal(t, therm.SourceElectrochem, gen.Source)
	assert.True(t, gen.Converged)
}

func TestElectrochemMapsNonConvergence(t *testing.T) {
	ohmic, err := NewOhmic(OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)

	solver := &stubSolver{err: fmt.Errorf("%w: stuck", therm.ErrSolverNonConvergence)}
	e := NewElectrochem(ohmic, solver, 0)

	st := therm.NewState(2, 25)
	gen, err := e.Generate(context.Background(), -5, st)
	assert.ErrorIs(t, err, therm.ErrSolverNonConvergence)

	// The ohmic baseline rides along as the usable fallback.
	require.NotNil(t, gen)
	assert.Equal(t, therm.SourceOhmic, gen.Source)
	assert.False(t, gen.Converged)
	assert.InDelta(t, 2.5, gen.PerZone[0], 1e-12)
}

func TestElectrochemTimeoutIsNonConvergence(t *testing.T) {
	ohmic, err := NewOhmic(OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)

	solver := &stubSolver{
		result: &p2d.Result{PerZone: []float64{1}, Converged: true},
		delay:  time.Second,
	}
	e := NewElectrochem(ohmic, solver, 5*time.Millisecond)

	st := therm.NewState(1, 25)
	gen, err := e.Generate(context.Background(), -5, st)
	require.Error(t, err)
	assert.True(t, errors.Is(err, therm.ErrSolverNonConvergence))
	require.NotNil(t, gen)
	assert.Equal(t, therm.SourceOhmic, gen.Source)
	assert.False(t, gen.Converged)
}

func TestElectrochemRejectsZoneMismatch(t *testing.T) {
	ohmic, err := NewOhmic(OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)

	solver := &stubSolver{result: &p2d.Result{PerZone: []float64{1}, Converged: true}}
	e := NewElectrochem(ohmic, solver, 0)

	st := therm.NewState(3, 25)
	_, err = e.Generate(context.Background(), -5, st)
	assert.ErrorIs(t, err, therm.ErrInvalidInput)
}
