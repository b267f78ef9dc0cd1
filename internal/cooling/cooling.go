// Package cooling defines the heat-removal capability and its variants.
// All variants sit behind the one Module interface and are selected at
// configuration time; the loop and the controller work identically
// regardless of which variant is active.
package cooling

import (
	"fmt"

	"github.com/battherm/battherm/internal/therm"
)

// Variant names accepted by configuration.
const (
	VariantPassive = "passive"
	VariantLiquid  = "liquid"
	VariantPCM     = "pcm"
)

// Module removes heat from the pack. RemoveHeat is a query: it must not
// mutate internal state, so the controller can probe candidate commands
// freely. Advance applies one step of internal dynamics for stateful
// variants.
type Module interface {
	// RemoveHeat returns the per-zone removal rate (W, positive removes
	// heat) for the given state and command.
	RemoveHeat(st *therm.State, cmd therm.Command) ([]float64, error)

	// Advance progresses internal state by dt using the most recent
	// RemoveHeat query. No-op for stateless variants.
	Advance(dt float64)

	// Bounds is the valid actuator command range. Zero for variants
	// without an actuator.
	Bounds() therm.ActuatorBounds

	// Conductance is an upper bound on d(rate)/dT per zone (W/K), used
	// for the integrator stability bound.
	Conductance() float64

	Name() string
}

// CommandSensitivity estimates d(total removal)/d(command) for a module at
// the given state by a forward difference over the actuator range. Modules
// without an actuator report zero. Used by the controller linearization.
func CommandSensitivity(m Module, st *therm.State) (float64, error) {
	b := m.Bounds()
	span := b.Max - b.Min
	if span <= 0 {
		return 0, nil
	}
	h := span / 100.0
	lo, err := m.RemoveHeat(st, therm.Command(b.Min))
	if err != nil {
		return 0, err
	}
	hi, err := m.RemoveHeat(st, therm.Command(b.Min+h))
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range hi {
		sum += hi[i] - lo[i]
	}
	return sum / h, nil
}

func invalidCommand(name string, cmd therm.Command, b therm.ActuatorBounds) error {
	return fmt.Errorf("%w: %s command %.4g outside [%.4g, %.4g]",
		therm.ErrActuatorOutOfRange, name, float64(cmd), b.Min, b.Max)
}
