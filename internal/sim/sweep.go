package sim

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/battherm/battherm/internal/config"
)

// SweepPoint is the outcome of one simulation inside a sweep.
type SweepPoint struct {
	Params  map[string]float64 `json:"params"`
	Fitness float64            `json:"fitness"`
	Metrics map[string]float64 `json:"metrics"`
	Err     error              `json:"-"`
}

// Sweep runs one simulation per parameter assignment, in parallel. Each
// run gets its own cloned configuration and freshly built components, so
// runs share nothing. The returned slice preserves input order.
func Sweep(ctx context.Context, base *config.Config, assignments []map[string]float64, log *zap.Logger) ([]SweepPoint, error) {
	if log == nil {
		log = zap.NewNop()
	}
	points := make([]SweepPoint, len(assignments))

	var wg sync.WaitGroup
	for i, params := range assignments {
		wg.Add(1)
		go func(idx int, params map[string]float64) {
			defer wg.Done()

			cfg := base.Clone()
			pt := SweepPoint{Params: params}
			for name, val := range params {
				if err := cfg.Set(name, val); err != nil {
					pt.Err = err
					points[idx] = pt
					return
				}
			}

			fitness, res, err := Evaluate(ctx, cfg, zap.NewNop())
			pt.Fitness = fitness
			pt.Err = err
			if res != nil {
				pt.Metrics = res.Metrics
			}
			points[idx] = pt
		}(i, params)
	}
	wg.Wait()

	failed := 0
	for _, pt := range points {
		if pt.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		log.Warn("sweep finished with failed points",
			zap.Int("failed", failed),
			zap.Int("total", len(points)))
	}
	return points, nil
}

// GridAssignments expands per-parameter value lists into the full cross
// product of assignments.
func GridAssignments(names []string, values [][]float64) []map[string]float64 {
	if len(names) == 0 || len(names) != len(values) {
		return nil
	}
	var out []map[string]float64
	var rec func(depth int, current map[string]float64)
	rec = func(depth int, current map[string]float64) {
		if depth == len(names) {
			m := make(map[string]float64, len(current))
			for k, v := range current {
				m[k] = v
			}
			out = append(out, m)
			return
		}
		for _, v := range values[depth] {
			current[names[depth]] = v
			rec(depth+1, current)
		}
		delete(current, names[depth])
	}
	rec(0, make(map[string]float64))
	return out
}
