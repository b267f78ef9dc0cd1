package mpc

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/battherm/battherm/internal/therm"
)

// Status is the optimization solver outcome.
type Status string

const (
	StatusOptimal     Status = "optimal"
	StatusInfeasible  Status = "infeasible"
	StatusSolverError Status = "solver_error"
)

// problem is the condensed finite-horizon program: predicted mean
// temperature T = phi*u + free, cost = energy + soft upper-bound slack +
// lower-bound penalty, command box constraints handled by projection.
type problem struct {
	phi  *mat.Dense    // H x H, lower triangular command response
	free *mat.VecDense // H, free temperature response

	tMax, tMin float64
	wEnergy    float64
	wSlack     float64
	wLower     float64

	bounds  therm.ActuatorBounds
	maxIter int
	tol     float64
}

// solve runs projected gradient descent from the warm start. The cost is
// convex and the step size is set from a Lipschitz bound, so the iteration
// is monotone; failure to settle within the budget or the deadline is a
// solver error, not a hang.
func (p *problem) solve(ctx context.Context, warm []float64) (u, predicted []float64, st Status, iters int) {
	h, _ := p.phi.Dims()

	uVec := mat.NewVecDense(h, nil)
	for i := 0; i < h && i < len(warm); i++ {
		uVec.SetVec(i, clamp(warm[i], p.bounds))
	}

	// Lipschitz bound on the gradient: Frobenius norm over-estimates the
	// spectral norm, which only shrinks the step.
	normPhi := mat.Norm(p.phi, 2)
	lip := 2*p.wEnergy + 2*(p.wSlack+p.wLower)*normPhi*normPhi
	if lip <= 0 || math.IsNaN(lip) || math.IsInf(lip, 0) {
		return nil, nil, StatusSolverError, 0
	}
	step := 1.0 / lip

	temps := mat.NewVecDense(h, nil)
	resid := mat.NewVecDense(h, nil)
	grad := mat.NewVecDense(h, nil)

	converged := false
	for iters = 0; iters < p.maxIter; iters++ {
		select {
		case <-ctx.Done():
			return nil, nil, StatusSolverError, iters
		default:
		}

		temps.MulVec(p.phi, uVec)
		temps.AddVec(temps, p.free)

		for k := 0; k < h; k++ {
			t := temps.AtVec(k)
			r := 0.0
			if over := t - p.tMax; over > 0 {
				r += 2 * p.wSlack * over
			}
			if under := p.tMin - t; under > 0 {
				r -= 2 * p.wLower * under
			}
			resid.SetVec(k, r)
		}

		grad.MulVec(p.phi.T(), resid)
		grad.AddScaledVec(grad, 2*p.wEnergy, uVec)

		moved := 0.0
		for k := 0; k < h; k++ {
			next := clamp(uVec.AtVec(k)-step*grad.AtVec(k), p.bounds)
			moved = math.Max(moved, math.Abs(next-uVec.AtVec(k)))
			uVec.SetVec(k, next)
		}
		if math.IsNaN(moved) {
			return nil, nil, StatusSolverError, iters
		}
		if moved < p.tol {
			converged = true
			iters++
			break
		}
	}

	temps.MulVec(p.phi, uVec)
	temps.AddVec(temps, p.free)

	u = make([]float64, h)
	predicted = make([]float64, h)
	for k := 0; k < h; k++ {
		u[k] = uVec.AtVec(k)
		predicted[k] = temps.AtVec(k)
		if math.IsNaN(u[k]) || math.IsNaN(predicted[k]) {
			return nil, nil, StatusSolverError, iters
		}
	}

	if !converged {
		return u, predicted, StatusSolverError, iters
	}
	return u, predicted, StatusOptimal, iters
}

func clamp(v float64, b therm.ActuatorBounds) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}
