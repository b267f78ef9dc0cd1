// Package sim orchestrates simulation runs: it drives the per-step
// sequence of heat generation, control, cooling and state integration,
// records history, and applies the configured fallback policies when a
// component fails.
package sim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/battherm/battherm/internal/cooling"
	"github.com/battherm/battherm/internal/heat"
	"github.com/battherm/battherm/internal/metrics"
	"github.com/battherm/battherm/internal/model"
	"github.com/battherm/battherm/internal/therm"
)

// Controller decides the cooling command for the next interval. A
// controller may return a usable fallback command together with a
// recoverable error.
type Controller interface {
	Command(ctx context.Context, st *therm.State, gen *therm.Generation) (therm.Command, error)
}

// Fixed always issues the same command. With zero value it is the
// "no controller" choice for passive runs.
type Fixed struct {
	Value therm.Command
}

func (f *Fixed) Command(context.Context, *therm.State, *therm.Generation) (therm.Command, error) {
	return f.Value, nil
}

// Config drives one run. Immutable once the run starts.
type Config struct {
	Steps           int
	Dt              float64
	Current         float64 // applied current, A (negative discharges)
	ControlEvery    int     // steps between controller solves
	MaxGenFallbacks int     // consecutive generation fallbacks before abort
}

// Warnings summarizes recovered events, reported even for successful runs.
type Warnings struct {
	GenFallbacks  int `json:"gen_fallbacks"`
	SafetyEvents  int `json:"safety_events"`
	DtAdjustments int `json:"dt_adjustments"`
}

func (w Warnings) Any() bool {
	return w.GenFallbacks > 0 || w.SafetyEvents > 0 || w.DtAdjustments > 0
}

// Result of a completed run.
type Result struct {
	History  []therm.Record
	Metrics  map[string]float64
	Warnings Warnings
}

// Loop executes steps 1..N strictly sequentially: each step's inputs
// depend on the previous step's state. A run may be cancelled between
// steps but never mid-step; a step's record is appended atomically.
type Loop struct {
	cfg      Config
	mdl      *model.Model
	provider heat.Provider
	mod      cooling.Module
	ctrl     Controller
	log      *zap.Logger
	mets     []metrics.Metric

	step            int
	lastGen         *therm.Generation
	lastCmd         therm.Command
	consecFallbacks int
	history         []therm.Record
	warnings        Warnings
}

func New(cfg Config, mdl *model.Model, provider heat.Provider, mod cooling.Module, ctrl Controller, log *zap.Logger) (*Loop, error) {
	if cfg.Steps < 1 {
		return nil, fmt.Errorf("%w: steps must be >= 1, got %d", therm.ErrInvalidInput, cfg.Steps)
	}
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be positive, got %g", therm.ErrInvalidInput, cfg.Dt)
	}
	if cfg.ControlEvery < 1 {
		cfg.ControlEvery = 1
	}
	if ctrl == nil {
		ctrl = &Fixed{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	mdl.SetCoolingSlope(mod.Conductance())
	return &Loop{
		cfg:      cfg,
		mdl:      mdl,
		provider: provider,
		mod:      mod,
		ctrl:     ctrl,
		log:      log,
		history:  make([]therm.Record, 0, cfg.Steps),
	}, nil
}

func (l *Loop) AddMetric(m metrics.Metric) { l.mets = append(l.mets, m) }

// State exposes the current thermal state, read-only.
func (l *Loop) State() *therm.State { return l.mdl.State() }

// History returns the records appended so far.
func (l *Loop) History() []therm.Record { return l.history }

func (l *Loop) Warnings() Warnings { return l.warnings }

// Done reports whether all configured steps have run.
func (l *Loop) Done() bool { return l.step >= l.cfg.Steps }

// StepOnce executes exactly one simulation step. On a fatal error nothing
// is appended to the history for that step.
func (l *Loop) StepOnce(ctx context.Context) (*therm.Record, error) {
	if l.Done() {
		return nil, fmt.Errorf("%w: run already complete", therm.ErrInvalidInput)
	}
	st := l.mdl.State()

	gen, err := l.provider.Generate(ctx, l.cfg.Current, st)
	fallback := false
	if err != nil {
		if !errors.Is(err, therm.ErrSolverNonConvergence) {
			return nil, l.fatal(err)
		}
		switch {
		case gen != nil:
			// The provider degraded to a freshly computed baseline rate.
			// That is a valid heat source, so the stale-reuse budget does
			// not apply.
			gen.Converged = false
			l.consecFallbacks = 0
		case l.lastGen != nil:
			l.consecFallbacks++
			if l.consecFallbacks > l.cfg.MaxGenFallbacks {
				return nil, l.fatal(fmt.Errorf("exhausted %d consecutive generation fallbacks: %w", l.cfg.MaxGenFallbacks, err))
			}
			gen = l.lastGen.Clone()
			gen.Converged = false
		default:
			return nil, l.fatal(fmt.Errorf("no fallback generation rate available: %w", err))
		}
		fallback = true
		l.warnings.GenFallbacks++
		l.log.Warn("electrochemical solve failed, continuing on fallback generation rate",
			zap.Int("step", l.step),
			zap.Int("consecutive", l.consecFallbacks))
	} else {
		l.consecFallbacks = 0
	}

	cmd := l.lastCmd
	if l.step%l.cfg.ControlEvery == 0 {
		c, cerr := l.ctrl.Command(ctx, st, gen)
		if cerr != nil {
			if !errors.Is(cerr, therm.ErrConstraintInfeasible) {
				return nil, l.fatal(cerr)
			}
			// Safe default: the controller already returned maximum
			// cooling effort.
			l.warnings.SafetyEvents++
			l.log.Warn("control solve infeasible, issuing maximum cooling effort",
				zap.Int("step", l.step),
				zap.Float64("command", float64(c)))
		}
		cmd = c
	}

	removal, err := l.mod.RemoveHeat(st, cmd)
	if err != nil {
		return nil, l.fatal(err)
	}

	l.mod.Advance(l.cfg.Dt)

	adjBefore := l.mdl.Adjustments()
	newSt, err := l.mdl.Step(gen.PerZone, removal, l.cfg.Dt)
	if err != nil {
		return nil, l.fatal(err)
	}
	if adj := l.mdl.Adjustments() - adjBefore; adj > 0 {
		l.warnings.DtAdjustments += adj
		l.log.Warn("timestep exceeded stability bound, substepped",
			zap.Int("step", l.step),
			zap.Float64("dt", l.cfg.Dt),
			zap.Float64("stable_dt", l.mdl.MaxStableDt()))
	}

	rec := therm.Record{
		Step:       l.step,
		Time:       newSt.Time,
		Temps:      newSt.Temps.Clone(),
		Command:    cmd,
		Generation: append([]float64(nil), gen.PerZone...),
		Source:     gen.Source,
		Fallback:   fallback,
	}
	l.history = append(l.history, rec)
	for _, m := range l.mets {
		m.Observe(&rec)
	}

	l.step++
	l.lastGen = gen
	l.lastCmd = cmd
	return &rec, nil
}

// Run executes all configured steps. Cancellation is honored between
// steps only; a step is the atomic unit of consistency.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	for !l.Done() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if _, err := l.StepOnce(ctx); err != nil {
			return nil, err
		}
	}

	if l.warnings.Any() {
		l.log.Warn("run completed with recovered events",
			zap.Int("gen_fallbacks", l.warnings.GenFallbacks),
			zap.Int("safety_events", l.warnings.SafetyEvents),
			zap.Int("dt_adjustments", l.warnings.DtAdjustments))
	}

	res := &Result{
		History:  l.history,
		Metrics:  make(map[string]float64, len(l.mets)),
		Warnings: l.warnings,
	}
	for _, m := range l.mets {
		res.Metrics[m.Name()] = m.Value()
	}
	return res, nil
}

func (l *Loop) fatal(err error) error {
	st := l.mdl.State()
	l.log.Error("simulation step failed",
		zap.Int("step", l.step),
		zap.Float64("time", st.Time),
		zap.Error(err))
	return &therm.StepError{Step: l.step, Time: st.Time, Err: err}
}
