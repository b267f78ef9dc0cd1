// Package metrics accumulates scalar run metrics from history records.
package metrics

import (
	"math"

	"github.com/battherm/battherm/internal/therm"
)

type Metric interface {
	Name() string
	Observe(rec *therm.Record)
	Value() float64
	Reset()
}

// MaxTemp tracks the hottest zone temperature seen during the run.
type MaxTemp struct {
	max     float64
	samples int
}

func NewMaxTemp() *MaxTemp { return &MaxTemp{max: math.Inf(-1)} }

func (m *MaxTemp) Name() string { return "max_temp" }

func (m *MaxTemp) Observe(rec *therm.Record) {
	m.samples++
	for _, t := range rec.Temps {
		if t > m.max {
			m.max = t
		}
	}
}

func (m *MaxTemp) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.max
}

func (m *MaxTemp) Reset() {
	m.max = math.Inf(-1)
	m.samples = 0
}

// CoolingEnergy integrates the commanded actuation over time, a proxy for
// the energy spent on active cooling.
type CoolingEnergy struct {
	dt  float64
	sum float64
}

func NewCoolingEnergy(dt float64) *CoolingEnergy { return &CoolingEnergy{dt: dt} }

func (c *CoolingEnergy) Name() string { return "cooling_energy" }

func (c *CoolingEnergy) Observe(rec *therm.Record) {
	v := float64(rec.Command)
	c.sum += v * v * c.dt
}

func (c *CoolingEnergy) Value() float64 { return c.sum }

func (c *CoolingEnergy) Reset() { c.sum = 0 }

// ControlEffort is the mean absolute command.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(rec *therm.Record) {
	c.sum += math.Abs(float64(rec.Command))
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// SafetyMargin tracks the fraction of steps with every zone at or below
// the configured limit.
type SafetyMargin struct {
	tMax       float64
	violations int
	samples    int
}

func NewSafetyMargin(tMax float64) *SafetyMargin { return &SafetyMargin{tMax: tMax} }

func (s *SafetyMargin) Name() string { return "safety_margin" }

func (s *SafetyMargin) Observe(rec *therm.Record) {
	s.samples++
	for _, t := range rec.Temps {
		if t > s.tMax {
			s.violations++
			break
		}
	}
}

func (s *SafetyMargin) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *SafetyMargin) Reset() {
	s.violations = 0
	s.samples = 0
}
