package therm

import (
	"errors"
	"fmt"
)

// Error taxonomy. Recoverable errors (ErrSolverNonConvergence,
// ErrConstraintInfeasible) are handled by the loop with a logged fallback;
// the rest terminate the run.
var (
	// ErrInvalidInput indicates malformed current or state passed into a
	// pure computation. Never retried.
	ErrInvalidInput = errors.New("therm: invalid input")

	// ErrNumericalInstability indicates an integration step violating the
	// stability bound, or a non-finite temperature after a step.
	ErrNumericalInstability = errors.New("therm: numerical instability")

	// ErrSolverNonConvergence indicates the electrochemical solve failed
	// or timed out.
	ErrSolverNonConvergence = errors.New("therm: electrochemical solve did not converge")

	// ErrConstraintInfeasible indicates the control problem could not be
	// solved even with slack.
	ErrConstraintInfeasible = errors.New("therm: control problem infeasible")

	// ErrActuatorOutOfRange indicates a cooling command outside the
	// configured actuator bounds. Always a programming or config error.
	ErrActuatorOutOfRange = errors.New("therm: actuator command out of range")

	// ErrConfigValidation indicates malformed or out-of-bound
	// configuration, raised before any simulation step executes.
	ErrConfigValidation = errors.New("therm: invalid configuration")
)

// StepError wraps an error with the step and simulation time it occurred at.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.3fs): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
