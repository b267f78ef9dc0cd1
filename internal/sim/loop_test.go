package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/config"
	"github.com/battherm/battherm/internal/heat"
	"github.com/battherm/battherm/internal/p2d"
	"github.com/battherm/battherm/internal/therm"
)

// flakyProvider succeeds for the first okSteps calls, then reports
// non-convergence forever without offering a degraded record.
type flakyProvider struct {
	inner   heat.Provider
	okSteps int
	calls   int
}

func (f *flakyProvider) Generate(ctx context.Context, current float64, st *therm.State) (*therm.Generation, error) {
	f.calls++
	if f.calls > f.okSteps {
		return nil, fmt.Errorf("%w: injected", therm.ErrSolverNonConvergence)
	}
	return f.inner.Generate(ctx, current, st)
}

func TestPassiveDischargeRun(t *testing.T) {
	cfg := config.Default()
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	// Complete history, one record per step, times strictly increasing.
	require.Len(t, res.History, cfg.Steps)
	for i, rec := range res.History {
		assert.Equal(t, i, rec.Step)
		assert.InDelta(t, cfg.Dt*float64(i+1), rec.Time, 1e-9)
		assert.Equal(t, therm.SourceOhmic, rec.Source)
		assert.False(t, rec.Fallback)
		require.Len(t, rec.Temps, cfg.Zones)
	}

	// Discharge heating dominates weak passive cooling: mean temperature
	// rises monotonically.
	prev := cfg.Ambient
	for _, rec := range res.History {
		mean := therm.Temps(rec.Temps).Mean()
		assert.Greater(t, mean, prev)
		prev = mean
	}

	assert.False(t, res.Warnings.Any())
	assert.Contains(t, res.Metrics, "max_temp")
	assert.Contains(t, res.Metrics, "cooling_energy")
	assert.Contains(t, res.Metrics, "safety_margin")
}

func TestControlledRunHoldsLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Current = -10
	cfg.Steps = 60
	cfg.Cooling.Variant = "liquid"
	cfg.Control.Controller = "mpc"

	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.History, cfg.Steps)

	assert.LessOrEqual(t, res.Metrics["max_temp"], cfg.Safety.TMax+cfg.Safety.SlackTol)
	for _, rec := range res.History {
		assert.True(t, therm.ActuatorBounds{
			Min: cfg.Cooling.Liquid.FlowMin,
			Max: cfg.Cooling.Liquid.FlowMax,
		}.Contains(rec.Command))
	}
}

func TestGenerationFallbackReusesLastRate(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 10
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	ohmic, err := heat.NewOhmic(heat.OhmicParams{
		Resistance: cfg.Battery.Resistance,
		RefTemp:    cfg.Battery.RefTemp,
	})
	require.NoError(t, err)
	loop.provider = &flakyProvider{inner: ohmic, okSteps: 1}
	loop.cfg.MaxGenFallbacks = cfg.Steps

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.History, cfg.Steps)

	assert.Equal(t, cfg.Steps-1, res.Warnings.GenFallbacks)
	assert.False(t, res.History[0].Fallback)
	for _, rec := range res.History[1:] {
		assert.True(t, rec.Fallback)
		// Fallback reuses the previous rate verbatim.
		assert.Equal(t, res.History[0].Generation, rec.Generation)
	}
}

func TestGenerationFallbackBudgetExhausts(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 10
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	ohmic, err := heat.NewOhmic(heat.OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)
	loop.provider = &flakyProvider{inner: ohmic, okSteps: 1}
	loop.cfg.MaxGenFallbacks = 3

	_, err = loop.Run(context.Background())
	require.Error(t, err)

	var stepErr *therm.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.ErrorIs(t, err, therm.ErrSolverNonConvergence)
	assert.Equal(t, 4, stepErr.Step)
	// Steps before the abort are all recorded.
	assert.Len(t, loop.History(), 4)
}

// failingSolver never converges.
type failingSolver struct{}

func (failingSolver) Solve(context.Context, float64, therm.Temps) (*p2d.Result, error) {
	return nil, fmt.Errorf("%w: stuck", therm.ErrSolverNonConvergence)
}

func TestAlwaysFailingSolverCompletesOnOhmicRate(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 20
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	ohmic, err := heat.NewOhmic(heat.OhmicParams{
		Resistance: cfg.Battery.Resistance,
		RefTemp:    cfg.Battery.RefTemp,
	})
	require.NoError(t, err)
	loop.provider = heat.NewElectrochem(ohmic, failingSolver{}, 0)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.History, cfg.Steps)

	// The degraded ohmic rate is fresh every step, so the run survives
	// well past the stale-reuse budget, including a failure on step 0.
	require.Greater(t, cfg.Steps, cfg.Electrochem.MaxFallbacks)
	assert.Equal(t, cfg.Steps, res.Warnings.GenFallbacks)
	for _, rec := range res.History {
		assert.True(t, rec.Fallback)
		assert.Equal(t, therm.SourceOhmic, rec.Source)
	}
}

func TestNoFallbackAvailableIsFatal(t *testing.T) {
	cfg := config.Default()
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	ohmic, err := heat.NewOhmic(heat.OhmicParams{Resistance: 0.1, RefTemp: 25})
	require.NoError(t, err)
	loop.provider = &flakyProvider{inner: ohmic, okSteps: 0}

	_, err = loop.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, therm.ErrSolverNonConvergence)
	assert.Empty(t, loop.History())
}

func TestZeroCurrentZeroCoolingHoldsState(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 50
	cfg.Current = 0
	cfg.Cooling.ConvCoeff = 0

	loop, err := Build(cfg, nil)
	require.NoError(t, err)
	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.History, cfg.Steps)

	// No generation and no loss path: the state is a fixed point and every
	// zone stays at ambient exactly.
	for _, rec := range res.History {
		for _, temp := range rec.Temps {
			assert.Equal(t, cfg.Ambient, temp)
		}
	}
	assert.False(t, res.Warnings.Any())
}

type infeasibleCtrl struct{ max therm.Command }

func (c *infeasibleCtrl) Command(context.Context, *therm.State, *therm.Generation) (therm.Command, error) {
	return c.max, fmt.Errorf("%w: injected", therm.ErrConstraintInfeasible)
}

func TestInfeasibleControlIsRecovered(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 5
	cfg.Cooling.Variant = "liquid"
	loop, err := Build(cfg, nil)
	require.NoError(t, err)
	loop.ctrl = &infeasibleCtrl{max: therm.Command(cfg.Cooling.Liquid.FlowMax)}

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.History, cfg.Steps)

	assert.Equal(t, cfg.Steps, res.Warnings.SafetyEvents)
	for _, rec := range res.History {
		assert.Equal(t, therm.Command(cfg.Cooling.Liquid.FlowMax), rec.Command)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	cfg := config.Default()
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepOnceAfterCompletion(t *testing.T) {
	cfg := config.Default()
	cfg.Steps = 1
	loop, err := Build(cfg, nil)
	require.NoError(t, err)

	_, err = loop.Run(context.Background())
	require.NoError(t, err)
	require.True(t, loop.Done())

	_, err = loop.StepOnce(context.Background())
	assert.ErrorIs(t, err, therm.ErrInvalidInput)
}
