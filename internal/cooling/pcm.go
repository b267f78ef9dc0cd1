package cooling

import "github.com/battherm/battherm/internal/therm"

type pcmMode int

const (
	pcmIdle pcmMode = iota
	pcmMelting
	pcmFreezing
)

// PCMParams parameterize the phase-change buffer.
type PCMParams struct {
	LatentHeat float64 // J/kg
	Mass       float64 // kg of PCM per zone
	MeltLow    float64 // degC, freezing re-engages below this
	MeltHigh   float64 // degC, melting engages above this
	HTC        float64 // W/m2K, cell-to-PCM exchange
	Area       float64 // m2 per zone
	ConvCoeff  float64 // W/m2K, natural convection baseline
}

// PCM buffers heat in the latent capacity of a phase-change material.
// While a zone's melt fraction is strictly between 0 and 1 the material
// clamps the cell near the melt point; the melt/freeze transition carries
// hysteresis between MeltLow and MeltHigh. Melt fractions persist across
// queries and change only in Advance.
type PCM struct {
	p PCMParams

	fraction []float64 // melt fraction per zone, 0..1
	mode     []pcmMode

	// last query, consumed by Advance
	lastLatent []float64
	lastTemps  therm.Temps
}

func NewPCM(p PCMParams, zones int) *PCM {
	return &PCM{
		p:          p,
		fraction:   make([]float64, zones),
		mode:       make([]pcmMode, zones),
		lastLatent: make([]float64, zones),
	}
}

func (m *PCM) Name() string { return VariantPCM }

// MeltFractions returns a copy of the per-zone melt fractions.
func (m *PCM) MeltFractions() []float64 {
	c := make([]float64, len(m.fraction))
	copy(c, m.fraction)
	return c
}

func (m *PCM) RemoveHeat(st *therm.State, _ therm.Command) ([]float64, error) {
	n := st.Zones()
	rates := make([]float64, n)
	latent := make([]float64, n)
	meltPoint := (m.p.MeltLow + m.p.MeltHigh) / 2

	for i, t := range st.Temps {
		base := m.p.ConvCoeff * m.p.Area * (t - st.Ambient)

		q := 0.0
		switch {
		case m.engagesMelting(i, t):
			q = m.p.HTC * m.p.Area * (t - meltPoint)
			if q < 0 {
				q = 0
			}
		case m.engagesFreezing(i, t):
			// Solidifying PCM returns latent heat to the cell.
			q = m.p.HTC * m.p.Area * (t - meltPoint)
			if q > 0 {
				q = 0
			}
		}

		latent[i] = q
		rates[i] = base + q
	}

	m.lastLatent = latent
	m.lastTemps = st.Temps.Clone()
	return rates, nil
}

func (m *PCM) engagesMelting(i int, t float64) bool {
	if m.fraction[i] >= 1 {
		return false
	}
	return m.mode[i] == pcmMelting || t > m.p.MeltHigh
}

func (m *PCM) engagesFreezing(i int, t float64) bool {
	if m.fraction[i] <= 0 {
		return false
	}
	return m.mode[i] == pcmFreezing || t < m.p.MeltLow
}

// Advance integrates the latent exchange of the most recent query into the
// melt fractions and updates the hysteresis modes.
func (m *PCM) Advance(dt float64) {
	if m.lastTemps == nil {
		return
	}
	capacity := m.p.Mass * m.p.LatentHeat

	for i := range m.fraction {
		if capacity > 0 {
			m.fraction[i] += m.lastLatent[i] * dt / capacity
			if m.fraction[i] < 0 {
				m.fraction[i] = 0
			}
			if m.fraction[i] > 1 {
				m.fraction[i] = 1
			}
		}

		t := m.lastTemps[i]
		switch m.mode[i] {
		case pcmMelting:
			if m.fraction[i] >= 1 || t < m.p.MeltLow {
				m.mode[i] = pcmIdle
			}
		case pcmFreezing:
			if m.fraction[i] <= 0 || t > m.p.MeltHigh {
				m.mode[i] = pcmIdle
			}
		default:
			if t > m.p.MeltHigh && m.fraction[i] < 1 {
				m.mode[i] = pcmMelting
			} else if t < m.p.MeltLow && m.fraction[i] > 0 {
				m.mode[i] = pcmFreezing
			}
		}
	}
}

func (m *PCM) Bounds() therm.ActuatorBounds { return therm.ActuatorBounds{} }

func (m *PCM) Conductance() float64 {
	return (m.p.ConvCoeff + m.p.HTC) * m.p.Area
}
