package sim

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/battherm/battherm/internal/config"
	"github.com/battherm/battherm/internal/cooling"
	"github.com/battherm/battherm/internal/heat"
	"github.com/battherm/battherm/internal/metrics"
	"github.com/battherm/battherm/internal/model"
	"github.com/battherm/battherm/internal/mpc"
	"github.com/battherm/battherm/internal/p2d"
	"github.com/battherm/battherm/internal/therm"
)

// Build assembles a full simulation loop from a validated configuration.
func Build(cfg *config.Config, log *zap.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	mdl, err := model.New(model.Params{
		Zones:             cfg.Zones,
		HeatCapacity:      cfg.Battery.HeatCapacity,
		ContactResistance: cfg.Battery.ContactResistance,
		SurfaceArea:       cfg.Battery.SurfaceArea,
		Emissivity:        cfg.Battery.Emissivity,
		Ambient:           cfg.Ambient,
		HardMin:           cfg.Safety.HardMin,
		HardMax:           cfg.Safety.HardMax,
		Scheme:            model.Scheme(cfg.Scheme),
		Policy:            model.StabilityPolicy(cfg.StabilityPolicy),
	})
	if err != nil {
		return nil, err
	}

	ohmic, err := heat.NewOhmic(heat.OhmicParams{
		Resistance:     cfg.Battery.Resistance,
		ArrheniusCoeff: cfg.Battery.ArrheniusCoeff,
		RefTemp:        cfg.Battery.RefTemp,
	})
	if err != nil {
		return nil, err
	}

	var provider heat.Provider = ohmic
	if cfg.Electrochem.Enabled {
		solver := p2d.NewReducedOrder(p2d.Params{
			ExchangeCurrent: cfg.Electrochem.ExchangeCurrent,
			ActivationEn:    cfg.Electrochem.ActivationEn,
			RefTemp:         cfg.Battery.RefTemp,
			EntropyCoeff:    cfg.Electrochem.EntropyCoeff,
			MaxIter:         cfg.Electrochem.MaxIter,
		})
		provider = heat.NewElectrochem(ohmic, solver, time.Duration(cfg.Electrochem.TimeoutMs)*time.Millisecond)
	}

	mod := BuildCooling(cfg)

	env := therm.SafetyEnvelope{
		TMin:     cfg.Safety.TMin,
		TMax:     cfg.Safety.TMax,
		SlackTol: cfg.Safety.SlackTol,
	}

	var ctrl Controller = &Fixed{}
	if cfg.Control.Controller == "mpc" {
		ctrl = mpc.New(mpc.Config{
			Horizon:      cfg.Control.Horizon,
			Dt:           cfg.Dt * float64(cfg.Control.Interval),
			WeightEnergy: cfg.Control.WeightEnergy,
			WeightSlack:  cfg.Control.WeightSlack,
			WeightLower:  cfg.Control.WeightSlack,
			MaxIter:      cfg.Control.MaxIter,
			Timeout:      time.Duration(cfg.Control.TimeoutMs) * time.Millisecond,
		}, env, mdl, mod, log)
	}

	loop, err := New(Config{
		Steps:           cfg.Steps,
		Dt:              cfg.Dt,
		Current:         cfg.Current,
		ControlEvery:    cfg.Control.Interval,
		MaxGenFallbacks: cfg.Electrochem.MaxFallbacks,
	}, mdl, provider, mod, ctrl, log)
	if err != nil {
		return nil, err
	}

	loop.AddMetric(metrics.NewMaxTemp())
	loop.AddMetric(metrics.NewCoolingEnergy(cfg.Dt))
	loop.AddMetric(metrics.NewControlEffort())
	loop.AddMetric(metrics.NewSafetyMargin(cfg.Safety.TMax))
	return loop, nil
}

// BuildCooling constructs the configured cooling variant.
func BuildCooling(cfg *config.Config) cooling.Module {
	switch cfg.Cooling.Variant {
	case cooling.VariantLiquid:
		l := cfg.Cooling.Liquid
		return cooling.NewLiquid(cooling.LiquidParams{
			FlowCoeff:   l.FlowCoeff,
			MaxHTC:      l.MaxHTC,
			CoolantTemp: l.CoolantTemp,
			Area:        l.Area,
			ConvCoeff:   cfg.Cooling.ConvCoeff,
			Bounds:      therm.ActuatorBounds{Min: l.FlowMin, Max: l.FlowMax},
		})
	case cooling.VariantPCM:
		p := cfg.Cooling.PCM
		return cooling.NewPCM(cooling.PCMParams{
			LatentHeat: p.LatentHeat,
			Mass:       p.Mass,
			MeltLow:    p.MeltLow,
			MeltHigh:   p.MeltHigh,
			HTC:        p.HTC,
			Area:       p.Area,
			ConvCoeff:  cfg.Cooling.ConvCoeff,
		}, cfg.Zones)
	default:
		return cooling.NewPassive(cfg.Cooling.ConvCoeff, cfg.Battery.SurfaceArea)
	}
}

// Evaluate runs one full simulation for the given configuration and
// reduces it to a scalar fitness: actuation energy plus a heavy penalty
// for exceeding the safety limit. This is the black-box entry point used
// by the sweep and search collaborators.
func Evaluate(ctx context.Context, cfg *config.Config, log *zap.Logger) (float64, *Result, error) {
	loop, err := Build(cfg, log)
	if err != nil {
		return math.Inf(1), nil, err
	}
	res, err := loop.Run(ctx)
	if err != nil {
		return math.Inf(1), nil, err
	}

	fitness := res.Metrics["cooling_energy"]
	if over := res.Metrics["max_temp"] - cfg.Safety.TMax; over > 0 {
		fitness += 1000 * over * over
	}
	return fitness, res, nil
}
