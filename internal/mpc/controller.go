// Package mpc implements the receding-horizon cooling controller. Every
// control interval it linearizes the thermal model around the present
// state, solves a convex finite-horizon program for a command sequence,
// and commits only the first command. If the solve does not come back
// optimal the controller still returns a safe command (maximum cooling
// effort) together with the error: the actuator is never left unset.
package mpc

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/battherm/battherm/internal/cooling"
	"github.com/battherm/battherm/internal/model"
	"github.com/battherm/battherm/internal/therm"
)

// Phase is the controller's position in its interval state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePredicting Phase = "predicting"
	PhaseOptimizing Phase = "optimizing"
	PhaseCommitted  Phase = "committed"
)

// Config are the controller tunables. Horizon length and penalty weights
// are configuration, not constants.
type Config struct {
	Horizon      int
	Dt           float64 // prediction step, s
	WeightEnergy float64
	WeightSlack  float64
	WeightLower  float64
	MaxIter      int
	Tolerance    float64
	Timeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Horizon:      5,
		Dt:           1.0,
		WeightEnergy: 1.0,
		WeightSlack:  100.0,
		WeightLower:  100.0,
		MaxIter:      500,
		Tolerance:    1e-6,
		Timeout:      100 * time.Millisecond,
	}
}

// Plan is the result of one solve: the command sequence and predicted
// mean temperatures over the horizon. Discarded after the first command
// is extracted; only the shifted sequence survives as a warm start.
type Plan struct {
	Commands   []float64
	Predicted  []float64
	Status     Status
	Iterations int
}

// Controller drives the cooling actuator.
type Controller struct {
	cfg Config
	env therm.SafetyEnvelope
	mdl *model.Model
	mod cooling.Module
	log *zap.Logger

	phase Phase
	warm  []float64
	last  *Plan
}

func New(cfg Config, env therm.SafetyEnvelope, mdl *model.Model, mod cooling.Module, log *zap.Logger) *Controller {
	if cfg.Horizon < 1 {
		cfg.Horizon = DefaultConfig().Horizon
	}
	if cfg.MaxIter < 1 {
		cfg.MaxIter = DefaultConfig().MaxIter
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{cfg: cfg, env: env, mdl: mdl, mod: mod, log: log, phase: PhaseIdle}
}

func (c *Controller) Phase() Phase { return c.phase }

// LastPlan returns the most recent plan, for inspection only.
func (c *Controller) LastPlan() *Plan { return c.last }

// Command runs one control interval and returns the committed command.
// On a non-optimal solve it returns the maximum-cooling fallback command
// together with an error wrapping ErrConstraintInfeasible; the caller
// logs the safety event and continues.
func (c *Controller) Command(ctx context.Context, st *therm.State, gen *therm.Generation) (therm.Command, error) {
	defer func() { c.phase = PhaseIdle }()
	bounds := c.mod.Bounds()

	c.phase = PhasePredicting
	prob, err := c.predict(st, gen)
	if err != nil {
		return therm.Command(bounds.Max), fmt.Errorf("%w: prediction: %v", therm.ErrConstraintInfeasible, err)
	}

	c.phase = PhaseOptimizing
	solveCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	u, predicted, status, iters := prob.solve(solveCtx, c.warm)

	if status == StatusOptimal {
		// A solve only counts as optimal if the soft bound actually held
		// within the configured slack tolerance. The plan predicts the
		// mean while the envelope binds the extreme zones, so the present
		// spread is carried through the horizon.
		hi := st.Temps.Max() - st.Temps.Mean()
		lo := st.Temps.Mean() - st.Temps.Min()
		for _, t := range predicted {
			if t+hi > c.env.TMax+c.env.SlackTol || t-lo < c.env.TMin-c.env.SlackTol {
				status = StatusInfeasible
				break
			}
		}
	}

	c.last = &Plan{Commands: u, Predicted: predicted, Status: status, Iterations: iters}

	if status != StatusOptimal {
		c.warm = nil
		c.log.Debug("control solve not optimal",
			zap.String("status", string(status)),
			zap.Int("iterations", iters))
		return therm.Command(bounds.Max), fmt.Errorf("%w: solve status %s", therm.ErrConstraintInfeasible, status)
	}

	c.phase = PhaseCommitted
	// Receding horizon: keep the shifted tail as next interval's warm start.
	c.warm = append(u[1:len(u):len(u)], u[len(u)-1])

	cmd := bounds.Clamp(therm.Command(u[0]))
	return cmd, nil
}

// predict builds the condensed program from a linearization of the model
// and the active cooling module around the present state: mean temperature
// follows T' = a*T + b*u + w with coefficients from finite differences on
// the module's removal characteristic.
func (c *Controller) predict(st *therm.State, gen *therm.Generation) (*problem, error) {
	n := st.Zones()
	cTotal := c.mdl.Params().HeatCapacity * float64(n)
	bounds := c.mod.Bounds()

	// Removal at minimum command and its temperature slope.
	r0, err := c.totalRemoval(st, therm.Command(bounds.Min))
	if err != nil {
		return nil, err
	}
	probe := st.Clone()
	for i := range probe.Temps {
		probe.Temps[i] += 1.0
	}
	r1, err := c.totalRemoval(probe, therm.Command(bounds.Min))
	if err != nil {
		return nil, err
	}
	g0 := r1 - r0 // W/K at zero actuation

	cu, err := cooling.CommandSensitivity(c.mod, st)
	if err != nil {
		return nil, err
	}

	t0 := st.Temps.Mean()
	genTotal := 0.0
	if gen != nil {
		genTotal = gen.Total()
	}

	dt := c.cfg.Dt
	a := 1 - dt*g0/cTotal
	b := -dt * cu / cTotal
	w := dt * (genTotal - r0 + g0*t0) / cTotal

	if math.IsNaN(a) || math.IsNaN(b) || math.IsNaN(w) {
		return nil, fmt.Errorf("non-finite prediction coefficients")
	}

	h := c.cfg.Horizon
	phi := mat.NewDense(h, h, nil)
	free := mat.NewVecDense(h, nil)

	// T_k = a^k T0 + sum_{j<k} a^(k-1-j) (b u_j + w), k = 1..H
	ak := a
	accW := w
	for k := 0; k < h; k++ {
		free.SetVec(k, ak*t0+accW)
		pow := 1.0
		for j := k; j >= 0; j-- {
			phi.Set(k, j, pow*b)
			pow *= a
		}
		ak *= a
		accW = a*accW + w
	}

	return &problem{
		phi:     phi,
		free:    free,
		tMax:    c.env.TMax,
		tMin:    c.env.TMin,
		wEnergy: c.cfg.WeightEnergy,
		wSlack:  c.cfg.WeightSlack,
		wLower:  c.cfg.WeightLower,
		bounds:  bounds,
		maxIter: c.cfg.MaxIter,
		tol:     c.cfg.Tolerance,
	}, nil
}

func (c *Controller) totalRemoval(st *therm.State, cmd therm.Command) (float64, error) {
	rates, err := c.mod.RemoveHeat(st, cmd)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, r := range rates {
		sum += r
	}
	return sum, nil
}
