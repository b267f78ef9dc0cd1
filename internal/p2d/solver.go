// Package p2d is the boundary to the pseudo-two-dimensional
// electrochemical cell solver. The solve is treated as a pure function of
// the applied current and the present temperature field that may fail to
// converge; callers must be prepared for that outcome on every call.
package p2d

import (
	"context"
	"fmt"
	"math"

	"github.com/battherm/battherm/internal/therm"
)

const (
	gasConstant = 8.314462
	faraday     = 96485.33
)

// Result is the outcome of one electrochemical solve.
type Result struct {
	PerZone    []float64 // heat generation, W per zone
	Iterations int
	Converged  bool
}

// Solver is the external solve boundary. Implementations must honor the
// context deadline and return ErrSolverNonConvergence (wrapped) when the
// iteration fails to settle.
type Solver interface {
	Solve(ctx context.Context, current float64, temps therm.Temps) (*Result, error)
}

// Params parameterize the reduced-order solver.
type Params struct {
	ExchangeCurrent float64 // A, reference exchange current at RefTemp
	ActivationEn    float64 // J/mol, Arrhenius activation energy
	RefTemp         float64 // degC
	EntropyCoeff    float64 // V/K, dU/dT for the reversible heat term
	MaxIter         int
	Tolerance       float64 // V, convergence threshold on the overpotential
}

func DefaultParams() Params {
	return Params{
		ExchangeCurrent: 10.0,
		ActivationEn:    30e3,
		RefTemp:         25.0,
		EntropyCoeff:    -0.1e-3,
		MaxIter:         50,
		Tolerance:       1e-6,
	}
}

// ReducedOrder is a deterministic reduced-order cell solve: a fixed-point
// iteration on the Butler-Volmer overpotential with Arrhenius kinetics.
// It stands in for a full P2D code behind the same boundary.
type ReducedOrder struct {
	p Params
}

func NewReducedOrder(p Params) *ReducedOrder {
	if p.MaxIter <= 0 {
		p.MaxIter = DefaultParams().MaxIter
	}
	if p.Tolerance <= 0 {
		p.Tolerance = DefaultParams().Tolerance
	}
	return &ReducedOrder{p: p}
}

// Solve computes per-zone heat generation for the given current. Heat is
// the sum of the irreversible polarization term i*eta and the reversible
// entropy term i*T*dU/dT, split evenly across zones.
func (s *ReducedOrder) Solve(ctx context.Context, current float64, temps therm.Temps) (*Result, error) {
	if len(temps) == 0 {
		return nil, fmt.Errorf("%w: empty temperature field", therm.ErrInvalidInput)
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil, fmt.Errorf("%w: non-finite current", therm.ErrInvalidInput)
	}

	tK := temps.Mean() + 273.15
	i := math.Abs(current)

	// Fixed point: the local overpotential heats the reaction site, which
	// shifts the exchange current, which changes the overpotential.
	eta := 0.0
	iters := 0
	converged := false
	for ; iters < s.p.MaxIter; iters++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", therm.ErrSolverNonConvergence, ctx.Err())
		default:
		}

		localT := tK + eta*i/10.0 // crude local heating feedback
		i0 := s.exchangeCurrent(localT)
		next := 2 * gasConstant * localT / faraday * math.Asinh(i/(2*i0))
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return nil, fmt.Errorf("%w: overpotential diverged after %d iterations", therm.ErrSolverNonConvergence, iters)
		}
		if math.Abs(next-eta) < s.p.Tolerance {
			eta = next
			iters++
			converged = true
			break
		}
		eta = next
	}
	if !converged {
		return nil, fmt.Errorf("%w: no fixed point within %d iterations", therm.ErrSolverNonConvergence, s.p.MaxIter)
	}

	irreversible := i * eta
	reversible := current * tK * s.p.EntropyCoeff
	total := irreversible + reversible
	if total < 0 {
		total = 0
	}

	perZone := make([]float64, len(temps))
	for z := range perZone {
		perZone[z] = total / float64(len(temps))
	}
	return &Result{PerZone: perZone, Iterations: iters, Converged: true}, nil
}

func (s *ReducedOrder) exchangeCurrent(tK float64) float64 {
	refK := s.p.RefTemp + 273.15
	return s.p.ExchangeCurrent * math.Exp(-s.p.ActivationEn/gasConstant*(1/tK-1/refK))
}
