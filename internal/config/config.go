// Package config loads and validates run configuration. Validation is
// strict: unknown keys and out-of-range values fail before any simulation
// step executes.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/battherm/battherm/internal/therm"
)

type Config struct {
	Zones   int     `yaml:"zones"`
	Steps   int     `yaml:"steps"`
	Dt      float64 `yaml:"dt"`
	Current float64 `yaml:"current"`
	Ambient float64 `yaml:"ambient"`

	Scheme          string `yaml:"scheme"`           // explicit | implicit
	StabilityPolicy string `yaml:"stability_policy"` // auto | fail

	Battery     BatteryConfig     `yaml:"battery"`
	Safety      SafetyConfig      `yaml:"safety"`
	Cooling     CoolingConfig     `yaml:"cooling"`
	Control     ControlConfig     `yaml:"control"`
	Electrochem ElectrochemConfig `yaml:"electrochem"`
	Output      OutputConfig      `yaml:"output"`
}

type BatteryConfig struct {
	CapacityAh        float64 `yaml:"capacity_ah"`
	Resistance        float64 `yaml:"internal_resistance"` // ohm
	ArrheniusCoeff    float64 `yaml:"arrhenius_coeff"`     // 1/K
	RefTemp           float64 `yaml:"ref_temp"`            // degC
	HeatCapacity      float64 `yaml:"heat_capacity"`       // J/K per zone
	SurfaceArea       float64 `yaml:"surface_area"`        // m2 per zone
	ContactResistance float64 `yaml:"contact_resistance"`  // K/W
	Emissivity        float64 `yaml:"emissivity"`
}

type SafetyConfig struct {
	TMin     float64 `yaml:"t_min"`
	TMax     float64 `yaml:"t_max"`
	SlackTol float64 `yaml:"slack_tol"`
	HardMin  float64 `yaml:"hard_min"`
	HardMax  float64 `yaml:"hard_max"`
}

type CoolingConfig struct {
	Variant   string       `yaml:"variant"` // passive | liquid | pcm
	ConvCoeff float64      `yaml:"conv_coeff"`
	Liquid    LiquidConfig `yaml:"liquid"`
	PCM       PCMConfig    `yaml:"pcm"`
}

type LiquidConfig struct {
	FlowCoeff   float64 `yaml:"flow_coeff"`
	MaxHTC      float64 `yaml:"max_htc"`
	CoolantTemp float64 `yaml:"coolant_temp"`
	Area        float64 `yaml:"area"`
	FlowMin     float64 `yaml:"flow_min"`
	FlowMax     float64 `yaml:"flow_max"`
}

type PCMConfig struct {
	LatentHeat float64 `yaml:"latent_heat"`
	Mass       float64 `yaml:"mass"`
	MeltLow    float64 `yaml:"melt_low"`
	MeltHigh   float64 `yaml:"melt_high"`
	HTC        float64 `yaml:"htc"`
	Area       float64 `yaml:"area"`
}

type ControlConfig struct {
	Controller   string  `yaml:"controller"` // none | mpc
	Horizon      int     `yaml:"horizon"`
	Interval     int     `yaml:"interval"` // steps between solves
	WeightEnergy float64 `yaml:"weight_energy"`
	WeightSlack  float64 `yaml:"weight_slack"`
	MaxIter      int     `yaml:"max_iter"`
	TimeoutMs    int     `yaml:"timeout_ms"`
}

type ElectrochemConfig struct {
	Enabled         bool    `yaml:"enabled"`
	TimeoutMs       int     `yaml:"timeout_ms"`
	MaxFallbacks    int     `yaml:"max_fallbacks"`
	ExchangeCurrent float64 `yaml:"exchange_current"`
	ActivationEn    float64 `yaml:"activation_energy"`
	EntropyCoeff    float64 `yaml:"entropy_coeff"`
	MaxIter         int     `yaml:"max_iter"`
}

type OutputConfig struct {
	DataDir string `yaml:"data_dir"`
	Report  string `yaml:"report"`
}

func Default() *Config {
	return &Config{
		Zones:           3,
		Steps:           20,
		Dt:              1.0,
		Current:         -5.0,
		Ambient:         25.0,
		Scheme:          "explicit",
		StabilityPolicy: "auto",
		Battery: BatteryConfig{
			CapacityAh:        50,
			Resistance:        0.1,
			ArrheniusCoeff:    0.01,
			RefTemp:           25.0,
			HeatCapacity:      1000,
			SurfaceArea:       0.01,
			ContactResistance: 0.5,
			Emissivity:        0,
		},
		Safety: SafetyConfig{
			TMin:     0,
			TMax:     45,
			SlackTol: 0.5,
			HardMin:  -40,
			HardMax:  85,
		},
		Cooling: CoolingConfig{
			Variant:   "passive",
			ConvCoeff: 10,
			Liquid: LiquidConfig{
				FlowCoeff:   2000,
				MaxHTC:      800,
				CoolantTemp: 25,
				Area:        0.05,
				FlowMin:     0,
				FlowMax:     1,
			},
			PCM: PCMConfig{
				LatentHeat: 200e3,
				Mass:       0.02,
				MeltLow:    34,
				MeltHigh:   36,
				HTC:        100,
				Area:       0.05,
			},
		},
		Control: ControlConfig{
			Controller:   "none",
			Horizon:      5,
			Interval:     1,
			WeightEnergy: 1,
			WeightSlack:  100,
			MaxIter:      500,
			TimeoutMs:    100,
		},
		Electrochem: ElectrochemConfig{
			Enabled:         false,
			TimeoutMs:       250,
			MaxFallbacks:    5,
			ExchangeCurrent: 10,
			ActivationEn:    30e3,
			EntropyCoeff:    -0.1e-3,
			MaxIter:         50,
		},
		Output: OutputConfig{DataDir: ".battherm"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", therm.ErrConfigValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every range rule. All violations carry
// therm.ErrConfigValidation.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", therm.ErrConfigValidation, fmt.Sprintf(format, args...))
	}

	if c.Zones < 1 {
		return fail("zones must be >= 1, got %d", c.Zones)
	}
	if c.Steps < 1 {
		return fail("steps must be >= 1, got %d", c.Steps)
	}
	if c.Dt <= 0 {
		return fail("dt must be positive, got %g", c.Dt)
	}
	if c.Scheme != "explicit" && c.Scheme != "implicit" {
		return fail("scheme must be explicit or implicit, got %q", c.Scheme)
	}
	if c.StabilityPolicy != "auto" && c.StabilityPolicy != "fail" {
		return fail("stability_policy must be auto or fail, got %q", c.StabilityPolicy)
	}

	if c.Battery.Resistance <= 0 {
		return fail("internal_resistance must be positive, got %g", c.Battery.Resistance)
	}
	if c.Battery.HeatCapacity <= 0 {
		return fail("heat_capacity must be positive, got %g", c.Battery.HeatCapacity)
	}
	if c.Battery.ContactResistance < 0 || c.Battery.SurfaceArea < 0 || c.Battery.Emissivity < 0 {
		return fail("battery physical parameters must be non-negative")
	}

	if c.Safety.TMax <= c.Safety.TMin {
		return fail("t_max (%g) must exceed t_min (%g)", c.Safety.TMax, c.Safety.TMin)
	}
	if c.Safety.SlackTol < 0 {
		return fail("slack_tol must be non-negative, got %g", c.Safety.SlackTol)
	}
	if c.Safety.HardMax <= c.Safety.HardMin {
		return fail("hard bounds inverted")
	}

	switch c.Cooling.Variant {
	case "passive", "liquid", "pcm":
	default:
		return fail("cooling variant must be passive, liquid or pcm, got %q", c.Cooling.Variant)
	}
	if c.Cooling.ConvCoeff < 0 {
		return fail("conv_coeff must be non-negative, got %g", c.Cooling.ConvCoeff)
	}
	if c.Cooling.Variant == "liquid" {
		l := c.Cooling.Liquid
		if l.FlowMax <= l.FlowMin {
			return fail("liquid flow_max (%g) must exceed flow_min (%g)", l.FlowMax, l.FlowMin)
		}
		if l.FlowCoeff <= 0 || l.MaxHTC <= 0 || l.Area <= 0 {
			return fail("liquid flow_coeff, max_htc and area must be positive")
		}
	}
	if c.Cooling.Variant == "pcm" {
		p := c.Cooling.PCM
		if p.LatentHeat <= 0 || p.Mass <= 0 || p.HTC <= 0 || p.Area <= 0 {
			return fail("pcm latent_heat, mass, htc and area must be positive")
		}
		if p.MeltHigh <= p.MeltLow {
			return fail("pcm melt_high (%g) must exceed melt_low (%g)", p.MeltHigh, p.MeltLow)
		}
	}

	if c.Control.Controller != "none" && c.Control.Controller != "mpc" {
		return fail("controller must be none or mpc, got %q", c.Control.Controller)
	}
	if c.Control.Controller == "mpc" {
		if c.Control.Horizon < 1 {
			return fail("control horizon must be >= 1, got %d", c.Control.Horizon)
		}
		if c.Control.Interval < 1 {
			return fail("control interval must be >= 1, got %d", c.Control.Interval)
		}
		if c.Control.WeightEnergy < 0 || c.Control.WeightSlack < 0 {
			return fail("control weights must be non-negative")
		}
	}

	if c.Electrochem.Enabled {
		if c.Electrochem.MaxFallbacks < 0 {
			return fail("max_fallbacks must be non-negative, got %d", c.Electrochem.MaxFallbacks)
		}
		if c.Electrochem.TimeoutMs < 0 {
			return fail("electrochem timeout_ms must be non-negative, got %d", c.Electrochem.TimeoutMs)
		}
	}
	return nil
}

// Set assigns a sweepable parameter by name. The name set mirrors what the
// sweep and optimize commands expose.
func (c *Config) Set(name string, value float64) error {
	switch name {
	case "current":
		c.Current = value
	case "ambient":
		c.Ambient = value
	case "dt":
		c.Dt = value
	case "internal_resistance":
		c.Battery.Resistance = value
	case "arrhenius_coeff":
		c.Battery.ArrheniusCoeff = value
	case "heat_capacity":
		c.Battery.HeatCapacity = value
	case "contact_resistance":
		c.Battery.ContactResistance = value
	case "conv_coeff":
		c.Cooling.ConvCoeff = value
	case "flow_coeff":
		c.Cooling.Liquid.FlowCoeff = value
	case "max_htc":
		c.Cooling.Liquid.MaxHTC = value
	case "coolant_temp":
		c.Cooling.Liquid.CoolantTemp = value
	case "latent_heat":
		c.Cooling.PCM.LatentHeat = value
	case "pcm_mass":
		c.Cooling.PCM.Mass = value
	case "melt_low":
		c.Cooling.PCM.MeltLow = value
	case "melt_high":
		c.Cooling.PCM.MeltHigh = value
	default:
		return fmt.Errorf("%w: unknown sweep parameter %q", therm.ErrConfigValidation, name)
	}
	return nil
}

// Clone deep-copies the configuration so parallel runs never share it.
func (c *Config) Clone() *Config {
	cc := *c
	return &cc
}
