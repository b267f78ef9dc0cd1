package cooling

import "github.com/battherm/battherm/internal/therm"

// Passive is natural convection to ambient: rate = h*A*(T - Tambient).
// It has no actuator; commands are accepted and ignored.
type Passive struct {
	ConvCoeff float64 // W/m2K
	Area      float64 // m2 per zone
}

func NewPassive(convCoeff, area float64) *Passive {
	return &Passive{ConvCoeff: convCoeff, Area: area}
}

func (p *Passive) Name() string { return VariantPassive }

func (p *Passive) RemoveHeat(st *therm.State, _ therm.Command) ([]float64, error) {
	rates := make([]float64, st.Zones())
	for i, t := range st.Temps {
		rates[i] = p.ConvCoeff * p.Area * (t - st.Ambient)
	}
	return rates, nil
}

func (p *Passive) Advance(float64) {}

func (p *Passive) Bounds() therm.ActuatorBounds { return therm.ActuatorBounds{} }

func (p *Passive) Conductance() float64 { return p.ConvCoeff * p.Area }
