package cooling

import (
	"math"

	"github.com/battherm/battherm/internal/therm"
)

// LiquidParams parameterize the cold-plate model.
type LiquidParams struct {
	FlowCoeff   float64 // W/m2K per unit flow command
	MaxHTC      float64 // W/m2K, effectiveness saturation
	CoolantTemp float64 // degC, inlet temperature
	Area        float64 // m2 per zone
	ConvCoeff   float64 // W/m2K, natural convection baseline
	Bounds      therm.ActuatorBounds
}

// Liquid is a coolant-flow actuated cold plate. The effective heat
// transfer coefficient grows with the commanded flow rate and saturates
// at MaxHTC. Stateless apart from its fixed inlet temperature.
type Liquid struct {
	p LiquidParams
}

func NewLiquid(p LiquidParams) *Liquid {
	return &Liquid{p: p}
}

func (l *Liquid) Name() string { return VariantLiquid }

func (l *Liquid) RemoveHeat(st *therm.State, cmd therm.Command) ([]float64, error) {
	if !l.p.Bounds.Contains(cmd) {
		return nil, invalidCommand(l.Name(), cmd, l.p.Bounds)
	}

	h := math.Min(l.p.MaxHTC, l.p.FlowCoeff*float64(cmd))
	rates := make([]float64, st.Zones())
	for i, t := range st.Temps {
		// Forced removal never runs backwards: a plate colder than the
		// cell removes heat, a plate above cell temperature is bypassed.
		forced := h * l.p.Area * (t - l.p.CoolantTemp)
		if forced < 0 {
			forced = 0
		}
		rates[i] = forced + l.p.ConvCoeff*l.p.Area*(t-st.Ambient)
	}
	return rates, nil
}

func (l *Liquid) Advance(float64) {}

func (l *Liquid) Bounds() therm.ActuatorBounds { return l.p.Bounds }

func (l *Liquid) Conductance() float64 {
	return (l.p.MaxHTC + l.p.ConvCoeff) * l.p.Area
}

// CoolantTemp exposes the inlet temperature for controller prediction.
func (l *Liquid) CoolantTemp() float64 { return l.p.CoolantTemp }
