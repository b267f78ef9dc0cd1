// Package heat produces the per-step heat generation record. The ohmic
// provider is a pure computation; the electrochemically coupled provider
// additionally calls the P2D boundary and can report non-convergence,
// which the simulation loop recovers from.
package heat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/battherm/battherm/internal/p2d"
	"github.com/battherm/battherm/internal/therm"
)

// Provider yields a heat generation record for the current step. On a
// recoverable failure a provider may return a degraded record together
// with the error; a nil record means there is nothing to fall back on.
type Provider interface {
	Generate(ctx context.Context, current float64, st *therm.State) (*therm.Generation, error)
}

// OhmicParams parameterize I²R generation with a temperature-dependent
// internal resistance R(T) = R0 * exp(alpha * (Tmean - Tref)).
type OhmicParams struct {
	Resistance     float64 // ohm, R0
	ArrheniusCoeff float64 // 1/K, alpha
	RefTemp        float64 // degC
}

// Ohmic computes resistive generation analytically. Each zone carries its
// own heater, so every zone receives the full I²R term.
type Ohmic struct {
	p OhmicParams
}

func NewOhmic(p OhmicParams) (*Ohmic, error) {
	if p.Resistance <= 0 || math.IsNaN(p.Resistance) {
		return nil, fmt.Errorf("%w: internal resistance must be positive, got %g", therm.ErrInvalidInput, p.Resistance)
	}
	return &Ohmic{p: p}, nil
}

func (o *Ohmic) Generate(_ context.Context, current float64, st *therm.State) (*therm.Generation, error) {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil, fmt.Errorf("%w: non-finite current", therm.ErrInvalidInput)
	}
	if !st.Temps.IsValid() {
		return nil, fmt.Errorf("%w: non-finite temperature state", therm.ErrInvalidInput)
	}

	r := o.p.Resistance * math.Exp(o.p.ArrheniusCoeff*(st.Temps.Mean()-o.p.RefTemp))
	q := current * current * r

	perZone := make([]float64, st.Zones())
	for i := range perZone {
		perZone[i] = q
	}
	return &therm.Generation{PerZone: perZone, Source: therm.SourceOhmic, Converged: true}, nil
}

// Electrochem couples the ohmic baseline with per-zone heat from the P2D
// solve. The solve is blocking and bounded by a timeout; exceeding it is
// treated as non-convergence, never as a hang. When the solve fails the
// ohmic baseline rides along with the error so the run can continue on
// resistive heat alone.
type Electrochem struct {
	ohmic   *Ohmic
	solver  p2d.Solver
	timeout time.Duration
}

func NewElectrochem(ohmic *Ohmic, solver p2d.Solver, timeout time.Duration) *Electrochem {
	return &Electrochem{ohmic: ohmic, solver: solver, timeout: timeout}
}

func (e *Electrochem) Generate(ctx context.Context, current float64, st *therm.State) (*therm.Generation, error) {
	gen, err := e.ohmic.Generate(ctx, current, st)
	if err != nil {
		return nil, err
	}

	solveCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := e.solver.Solve(solveCtx, current, st.Temps)
	if err != nil {
		if errors.Is(err, therm.ErrSolverNonConvergence) || errors.Is(err, context.DeadlineExceeded) {
			gen.Converged = false
			return gen, fmt.Errorf("%w: p2d solve: %v", therm.ErrSolverNonConvergence, err)
		}
		return nil, err
	}
	if len(res.PerZone) != st.Zones() {
		return nil, fmt.Errorf("%w: p2d returned %d zones, want %d", therm.ErrInvalidInput, len(res.PerZone), st.Zones())
	}

	for i := range gen.PerZone {
		gen.PerZone[i] += res.PerZone[i]
	}
	gen.Source = therm.SourceElectrochem
	gen.Converged = res.Converged
	return gen, nil
}
