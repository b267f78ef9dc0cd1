package optim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Bound is the allowed interval for one tunable parameter.
type Bound struct {
	Name string
	Min  float64
	Max  float64
}

// GAConfig tunes the genetic search. Zero values fall back to defaults.
type GAConfig struct {
	Population  int
	Generations int
	TournamentK int
	CrossRate   float64
	MutRate     float64
	MutSigma    float64 // gaussian mutation width, fraction of the bound span
	Seed        int64
}

func (c *GAConfig) setDefaults() {
	if c.Population <= 0 {
		c.Population = 30
	}
	if c.Generations <= 0 {
		c.Generations = 20
	}
	if c.TournamentK <= 0 {
		c.TournamentK = 3
	}
	if c.CrossRate <= 0 {
		c.CrossRate = 0.7
	}
	if c.MutRate <= 0 {
		c.MutRate = 0.2
	}
	if c.MutSigma <= 0 {
		c.MutSigma = 0.1
	}
}

type individual struct {
	genes   []float64
	fitness float64
}

// Genetic minimizes the objective over the bounded parameter space with
// a tournament-selection GA. The search is deterministic for a fixed
// seed, bounds and objective.
type Genetic struct {
	cfg    GAConfig
	bounds []Bound
	rng    *rand.Rand
}

func NewGenetic(cfg GAConfig, bounds []Bound) (*Genetic, error) {
	cfg.setDefaults()
	if len(bounds) == 0 {
		return nil, fmt.Errorf("genetic search needs at least one bound")
	}
	for _, b := range bounds {
		if b.Max <= b.Min {
			return nil, fmt.Errorf("bound %q inverted: [%g, %g]", b.Name, b.Min, b.Max)
		}
	}
	return &Genetic{
		cfg:    cfg,
		bounds: bounds,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run evolves the population and returns the best assignment found.
func (g *Genetic) Run(ctx context.Context, obj Objective) (map[string]float64, float64, error) {
	pop := make([]individual, g.cfg.Population)
	for i := range pop {
		pop[i].genes = g.randomGenes()
	}

	if err := g.evaluate(ctx, pop, obj); err != nil {
		return nil, 0, err
	}

	for gen := 0; gen < g.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		next := make([]individual, 0, len(pop))

		// Elitism: the best survivor carries over unchanged.
		sort.Slice(pop, func(a, b int) bool { return pop[a].fitness < pop[b].fitness })
		next = append(next, individual{genes: append([]float64(nil), pop[0].genes...)})

		for len(next) < len(pop) {
			a := g.tournament(pop)
			b := g.tournament(pop)
			child := g.crossover(a, b)
			g.mutate(child)
			next = append(next, individual{genes: child})
		}

		pop = next
		if err := g.evaluate(ctx, pop, obj); err != nil {
			return nil, 0, err
		}
	}

	sort.Slice(pop, func(a, b int) bool { return pop[a].fitness < pop[b].fitness })
	best := pop[0]
	return g.toParams(best.genes), best.fitness, nil
}

func (g *Genetic) evaluate(ctx context.Context, pop []individual, obj Objective) error {
	for i := range pop {
		val, err := obj(ctx, g.toParams(pop[i].genes))
		if err != nil {
			val = math.Inf(1)
		}
		pop[i].fitness = val
	}
	return ctx.Err()
}

func (g *Genetic) randomGenes() []float64 {
	genes := make([]float64, len(g.bounds))
	for i, b := range g.bounds {
		genes[i] = b.Min + g.rng.Float64()*(b.Max-b.Min)
	}
	return genes
}

func (g *Genetic) tournament(pop []individual) []float64 {
	best := -1
	for k := 0; k < g.cfg.TournamentK; k++ {
		idx := g.rng.Intn(len(pop))
		if best < 0 || pop[idx].fitness < pop[best].fitness {
			best = idx
		}
	}
	return pop[best].genes
}

// crossover blends parent genes with a random per-gene weight.
func (g *Genetic) crossover(a, b []float64) []float64 {
	child := make([]float64, len(a))
	if g.rng.Float64() >= g.cfg.CrossRate {
		copy(child, a)
		return child
	}
	for i := range child {
		alpha := g.rng.Float64()
		child[i] = alpha*a[i] + (1-alpha)*b[i]
	}
	return child
}

func (g *Genetic) mutate(genes []float64) {
	for i, b := range g.bounds {
		if g.rng.Float64() >= g.cfg.MutRate {
			continue
		}
		span := b.Max - b.Min
		genes[i] += g.rng.NormFloat64() * g.cfg.MutSigma * span
		if genes[i] < b.Min {
			genes[i] = b.Min
		}
		if genes[i] > b.Max {
			genes[i] = b.Max
		}
	}
}

func (g *Genetic) toParams(genes []float64) map[string]float64 {
	params := make(map[string]float64, len(g.bounds))
	for i, b := range g.bounds {
		params[b.Name] = genes[i]
	}
	return params
}
