package p2d

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battherm/battherm/internal/therm"
)

func TestReducedOrderConverges(t *testing.T) {
	s := NewReducedOrder(DefaultParams())
	temps := therm.Temps{25, 25, 25}

	res, err := s.Solve(context.Background(), -5, temps)
	require.NoError(t, err)
	require.Len(t, res.PerZone, 3)
	assert.True(t, res.Converged)
	assert.Greater(t, res.Iterations, 0)

	for _, q := range res.PerZone {
		assert.GreaterOrEqual(t, q, 0.0)
	}
	// Even split across zones.
	assert.InDelta(t, res.PerZone[0], res.PerZone[2], 1e-12)
}

func TestReducedOrderHeatGrowsWithCurrent(t *testing.T) {
	s := NewReducedOrder(DefaultParams())
	temps := therm.Temps{25}

	low, err := s.Solve(context.Background(), -2, temps)
	require.NoError(t, err)
	high, err := s.Solve(context.Background(), -10, temps)
	require.NoError(t, err)

	assert.Greater(t, high.PerZone[0], low.PerZone[0])
}

func TestConvergenceOnFinalAllowedIteration(t *testing.T) {
	temps := therm.Temps{25, 25}
	ref, err := NewReducedOrder(DefaultParams()).Solve(context.Background(), -5, temps)
	require.NoError(t, err)
	require.Greater(t, ref.Iterations, 0)

	// The same solve capped at exactly the iteration count it needed must
	// still report convergence, not exhaustion.
	p := DefaultParams()
	p.MaxIter = ref.Iterations
	res, err := NewReducedOrder(p).Solve(context.Background(), -5, temps)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, ref.Iterations, res.Iterations)
	assert.InDelta(t, ref.PerZone[0], res.PerZone[0], 1e-12)
}

func TestReducedOrderNonConvergence(t *testing.T) {
	p := DefaultParams()
	p.MaxIter = 1
	s := NewReducedOrder(p)

	_, err := s.Solve(context.Background(), -5, therm.Temps{25})
	assert.ErrorIs(t, err, therm.ErrSolverNonConvergence)
}

func TestReducedOrderHonorsCancellation(t *testing.T) {
	s := NewReducedOrder(DefaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Solve(ctx, -5, therm.Temps{25})
	assert.ErrorIs(t, err, therm.ErrSolverNonConvergence)
}

func TestReducedOrderRejectsBadInput(t *testing.T) {
	s := NewReducedOrder(DefaultParams())

	_, err := s.Solve(context.Background(), -5, therm.Temps{})
	assert.ErrorIs(t, err, therm.ErrInvalidInput)
}
