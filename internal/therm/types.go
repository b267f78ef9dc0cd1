package therm

import "math"

// Temps is a vector of zone temperatures in degrees Celsius.
type Temps []float64

func (t Temps) Clone() Temps {
	c := make(Temps, len(t))
	copy(c, t)
	return c
}

func (t Temps) IsValid() bool {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (t Temps) Mean() float64 {
	if len(t) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range t {
		sum += v
	}
	return sum / float64(len(t))
}

func (t Temps) Max() float64 {
	if len(t) == 0 {
		return 0
	}
	m := t[0]
	for _, v := range t[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (t Temps) Min() float64 {
	if len(t) == 0 {
		return 0
	}
	m := t[0]
	for _, v := range t[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// State is the thermal state of the pack. The temperature vector is owned
// by the model; other components read it during a step but never mutate it.
type State struct {
	Temps   Temps
	Time    float64 // simulation time, s
	Ambient float64 // ambient temperature, degC
}

func NewState(zones int, ambient float64) *State {
	t := make(Temps, zones)
	for i := range t {
		t[i] = ambient
	}
	return &State{Temps: t, Ambient: ambient}
}

func (s *State) Clone() *State {
	return &State{Temps: s.Temps.Clone(), Time: s.Time, Ambient: s.Ambient}
}

func (s *State) Zones() int { return len(s.Temps) }

// Command is an actuator setpoint (coolant flow rate for the cold plate
// variant). Immutable once issued; superseded each control interval.
type Command float64

// ActuatorBounds is the valid command range for the active cooling module.
type ActuatorBounds struct {
	Min float64
	Max float64
}

func (b ActuatorBounds) Contains(c Command) bool {
	return float64(c) >= b.Min && float64(c) <= b.Max
}

// Clamp projects a command onto the bounds.
func (b ActuatorBounds) Clamp(c Command) Command {
	v := float64(c)
	if v < b.Min {
		v = b.Min
	}
	if v > b.Max {
		v = b.Max
	}
	return Command(v)
}

// SafetyEnvelope holds the configured temperature limits for a run.
// Immutable after run start.
type SafetyEnvelope struct {
	TMin     float64
	TMax     float64
	SlackTol float64 // tolerated soft-constraint violation, K
}

// HeatSource tags where a generation record came from.
type HeatSource string

const (
	SourceOhmic       HeatSource = "ohmic"
	SourceElectrochem HeatSource = "electrochem"
)

// Generation is the heat generation for one step, W per zone. Created
// fresh each step by the heat provider and consumed once by the model.
type Generation struct {
	PerZone   []float64
	Source    HeatSource
	Converged bool // electrochemical solver status; true for ohmic
}

func (g *Generation) Clone() *Generation {
	c := &Generation{
		PerZone:   make([]float64, len(g.PerZone)),
		Source:    g.Source,
		Converged: g.Converged,
	}
	copy(c.PerZone, g.PerZone)
	return c
}

func (g *Generation) Total() float64 {
	sum := 0.0
	for _, v := range g.PerZone {
		sum += v
	}
	return sum
}

// Record is one complete history tuple. A record is appended atomically:
// either the whole step is present or none of it.
type Record struct {
	Step       int        `json:"step"`
	Time       float64    `json:"time"`
	Temps      []float64  `json:"temps"`
	Command    Command    `json:"command"`
	Generation []float64  `json:"generation"`
	Source     HeatSource `json:"source"`
	Fallback   bool       `json:"fallback"`
}
