// Package model owns the temperature state and advances it one time step
// at a time by integrating the per-zone energy balance
//
//	C dT_i/dt = gen_i - removal_i - cond_i - rad_i
//
// where cond couples adjacent zones through a contact resistance and rad
// is the radiative loss to ambient. Removal is supplied by the active
// cooling module; the model itself never models the actuator.
package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/battherm/battherm/internal/therm"
)

const stefanBoltzmann = 5.67e-8

// Scheme selects the integration method.
type Scheme string

const (
	// SchemeExplicit is forward Euler, subject to the dt stability bound.
	SchemeExplicit Scheme = "explicit"
	// SchemeImplicit is backward Euler on the linear couplings,
	// unconditionally stable.
	SchemeImplicit Scheme = "implicit"
)

// StabilityPolicy decides what happens when dt violates the explicit
// stability bound.
type StabilityPolicy string

const (
	// PolicyAuto substeps the update and reports the adjustment.
	PolicyAuto StabilityPolicy = "auto"
	// PolicyFail aborts with ErrNumericalInstability.
	PolicyFail StabilityPolicy = "fail"
)

// Params are the physical and numerical parameters of the model.
// Immutable after construction.
type Params struct {
	Zones             int
	HeatCapacity      float64 // J/K per zone
	ContactResistance float64 // K/W between adjacent zones; 0 disables conduction
	SurfaceArea       float64 // m2 per zone
	Emissivity        float64 // 0 disables radiation
	Ambient           float64 // degC
	HardMin           float64 // physical plausibility floor, degC
	HardMax           float64 // physical plausibility ceiling, degC
	Scheme            Scheme
	Policy            StabilityPolicy
}

// Model integrates the thermal state. It owns its State exclusively;
// callers get read access through State() and must not mutate it.
type Model struct {
	p     Params
	state *therm.State

	// conductance of the active cooling path, W/K, used only for the
	// explicit stability bound
	coolingSlope float64

	adjustments int // substepped updates under PolicyAuto
}

func New(p Params) (*Model, error) {
	if p.Zones < 1 {
		return nil, fmt.Errorf("%w: zones must be >= 1, got %d", therm.ErrInvalidInput, p.Zones)
	}
	if p.HeatCapacity <= 0 {
		return nil, fmt.Errorf("%w: heat capacity must be positive, got %g", therm.ErrInvalidInput, p.HeatCapacity)
	}
	if p.ContactResistance < 0 || p.SurfaceArea < 0 || p.Emissivity < 0 {
		return nil, fmt.Errorf("%w: negative physical parameter", therm.ErrInvalidInput)
	}
	if p.HardMax <= p.HardMin {
		return nil, fmt.Errorf("%w: hard bounds inverted", therm.ErrInvalidInput)
	}
	return &Model{p: p, state: therm.NewState(p.Zones, p.Ambient)}, nil
}

// State returns the current thermal state. Read-only for callers.
func (m *Model) State() *therm.State { return m.state }

func (m *Model) Params() Params { return m.p }

// Adjustments reports how many steps were substepped under PolicyAuto.
func (m *Model) Adjustments() int { return m.adjustments }

// SetCoolingSlope registers the heat-transfer slope (W/K) of the active
// cooling module so the stability bound covers it.
func (m *Model) SetCoolingSlope(slope float64) {
	if slope > 0 {
		m.coolingSlope = slope
	}
}

// lossSlope is the total linear heat-loss coefficient per zone, W/K.
// Conduction contributes up to 2/Rc (interior zones), radiation its
// linearization at the hard ceiling.
func (m *Model) lossSlope() float64 {
	s := m.coolingSlope
	if m.p.ContactResistance > 0 && m.p.Zones > 1 {
		s += 2.0 / m.p.ContactResistance
	}
	if m.p.Emissivity > 0 {
		tk := m.p.HardMax + 273.15
		s += 4 * m.p.Emissivity * stefanBoltzmann * m.p.SurfaceArea * tk * tk * tk
	}
	return s
}

// MaxStableDt is the largest explicit step satisfying dt <= C / slope,
// i.e. the thermal time constant of the fastest loss path. Returns +Inf
// when there is no temperature-dependent loss.
func (m *Model) MaxStableDt() float64 {
	slope := m.lossSlope()
	if slope <= 0 {
		return math.Inf(1)
	}
	return m.p.HeatCapacity / slope
}

// Step advances the state by dt given per-zone generation and removal
// rates (W). It mutates the model's own temperature vector and timestamp
// and has no other observable effects.
func (m *Model) Step(gen, removal []float64, dt float64) (*therm.State, error) {
	n := m.p.Zones
	if len(gen) != n || len(removal) != n {
		return nil, fmt.Errorf("%w: rate vectors must have %d zones (gen=%d removal=%d)",
			therm.ErrInvalidInput, n, len(gen), len(removal))
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: dt must be positive and finite, got %g", therm.ErrInvalidInput, dt)
	}

	substeps := 1
	if m.p.Scheme == SchemeExplicit {
		if maxDt := m.MaxStableDt(); dt > maxDt {
			if m.p.Policy == PolicyFail {
				return nil, fmt.Errorf("%w: dt=%.4g exceeds stable bound %.4g", therm.ErrNumericalInstability, dt, maxDt)
			}
			substeps = int(math.Ceil(dt / maxDt))
			m.adjustments++
		}
	}

	sub := dt / float64(substeps)
	for k := 0; k < substeps; k++ {
		var err error
		if m.p.Scheme == SchemeImplicit {
			err = m.stepImplicit(gen, removal, sub)
		} else {
			err = m.stepExplicit(gen, removal, sub)
		}
		if err != nil {
			return nil, err
		}
	}

	m.state.Time += dt
	return m.state, m.validate()
}

func (m *Model) stepExplicit(gen, removal []float64, dt float64) error {
	t := m.state.Temps
	next := make(therm.Temps, len(t))
	for i := range t {
		net := gen[i] - removal[i] - m.conduction(i) - m.radiation(t[i])
		next[i] = t[i] + net*dt/m.p.HeatCapacity
	}
	m.state.Temps = next
	return nil
}

// stepImplicit treats the conduction coupling implicitly and solves
// (I + dt/C * L) T' = T + dt/C * (gen - removal - rad(T)), where L is the
// conduction Laplacian. Generation, removal and radiation are held at the
// start-of-step value.
func (m *Model) stepImplicit(gen, removal []float64, dt float64) error {
	n := m.p.Zones
	t := m.state.Temps
	a := dt / m.p.HeatCapacity

	lhs := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		diag := 1.0
		if m.p.ContactResistance > 0 {
			g := 1.0 / m.p.ContactResistance
			if i > 0 {
				diag += a * g
				lhs.Set(i, i-1, -a*g)
			}
			if i < n-1 {
				diag += a * g
				lhs.Set(i, i+1, -a*g)
			}
		}
		lhs.Set(i, i, diag)
		rhs.SetVec(i, t[i]+a*(gen[i]-removal[i]-m.radiation(t[i])))
	}

	var sol mat.VecDense
	if err := sol.SolveVec(lhs, rhs); err != nil {
		return fmt.Errorf("%w: implicit solve failed: %v", therm.ErrNumericalInstability, err)
	}

	next := make(therm.Temps, n)
	for i := 0; i < n; i++ {
		next[i] = sol.AtVec(i)
	}
	m.state.Temps = next
	return nil
}

// conduction returns the net conductive loss of zone i to its neighbours, W.
func (m *Model) conduction(i int) float64 {
	if m.p.ContactResistance <= 0 || m.p.Zones == 1 {
		return 0
	}
	t := m.state.Temps
	q := 0.0
	if i > 0 {
		q += (t[i] - t[i-1]) / m.p.ContactResistance
	}
	if i < m.p.Zones-1 {
		q += (t[i] - t[i+1]) / m.p.ContactResistance
	}
	return q
}

// radiation returns the radiative loss to ambient, W.
func (m *Model) radiation(temp float64) float64 {
	if m.p.Emissivity <= 0 {
		return 0
	}
	tk := temp + 273.15
	ak := m.p.Ambient + 273.15
	return m.p.Emissivity * stefanBoltzmann * m.p.SurfaceArea * (tk*tk*tk*tk - ak*ak*ak*ak)
}

func (m *Model) validate() error {
	if !m.state.Temps.IsValid() {
		return fmt.Errorf("%w: non-finite temperature", therm.ErrNumericalInstability)
	}
	for i, v := range m.state.Temps {
		if v < m.p.HardMin || v > m.p.HardMax {
			return fmt.Errorf("%w: zone %d at %.2f degC outside [%.1f, %.1f]",
				therm.ErrNumericalInstability, i, v, m.p.HardMin, m.p.HardMax)
		}
	}
	return nil
}
