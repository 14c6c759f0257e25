// Package statistics computes the per-tick population statistics published at
// each step boundary.
package statistics

import (
	"context"

	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/parallel"
)

// AgentView exposes one agent record to the calculator without coupling it to
// the engine's agent layout.
type AgentView func(i int) (active bool, generation int64, fitness float64)

// StepStatsCalculator aggregates population statistics over the agent array.
type StepStatsCalculator struct {
	pool      parallel.PoolConfig
	histogram bool
}

// StepStatsOption configures the StepStatsCalculator.
type StepStatsOption func(*StepStatsCalculator)

// WithPool sets the parallel execution configuration.
func WithPool(pool parallel.PoolConfig) StepStatsOption {
	return func(c *StepStatsCalculator) {
		c.pool = pool
	}
}

// WithoutHistogram disables the organism size histogram; the max size is
// still reported.
func WithoutHistogram() StepStatsOption {
	return func(c *StepStatsCalculator) {
		c.histogram = false
	}
}

// NewStepStatsCalculator creates a new StepStatsCalculator.
func NewStepStatsCalculator(opts ...StepStatsOption) *StepStatsCalculator {
	c := &StepStatsCalculator{
		pool:      parallel.DefaultPoolConfig(),
		histogram: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// partial is one chunk's contribution; chunks merge in fixed order so the
// floating-point sums are reproducible.
type partial struct {
	active   int64
	uni      int64
	multi    int64
	fitSum   float64
	fitUni   float64
	fitMulti float64
	maxGen   int64
	hist     map[int64]int64
}

// Calculate aggregates the view over n agents into a StepStats record.
// Action and structural-op counts are the engine's to fill in.
func (c *StepStatsCalculator) Calculate(step int64, n int, view AgentView) (model.StepStats, error) {
	zero := partial{}
	if c.histogram {
		zero.hist = make(map[int64]int64)
	}

	agg, err := parallel.ReduceChunks(context.Background(), n, c.pool, zero,
		func(start, end int) partial {
			p := partial{}
			if c.histogram {
				p.hist = make(map[int64]int64)
			}
			for i := start; i < end; i++ {
				active, gen, fitness := view(i)
				if !active {
					continue
				}
				p.active++
				p.fitSum += fitness
				if gen > 1 {
					p.multi++
					p.fitMulti += fitness
				} else {
					p.uni++
					p.fitUni += fitness
				}
				if gen > p.maxGen {
					p.maxGen = gen
				}
				if p.hist != nil {
					p.hist[gen]++
				}
			}
			return p
		},
		func(acc, p partial) partial {
			acc.active += p.active
			acc.uni += p.uni
			acc.multi += p.multi
			acc.fitSum += p.fitSum
			acc.fitUni += p.fitUni
			acc.fitMulti += p.fitMulti
			if p.maxGen > acc.maxGen {
				acc.maxGen = p.maxGen
			}
			for k, v := range p.hist {
				acc.hist[k] += v
			}
			return acc
		})
	if err != nil {
		return model.StepStats{}, err
	}

	stats := model.StepStats{
		Step:          step,
		Active:        agg.active,
		Unicellular:   agg.uni,
		Multicellular: agg.multi,
		MaxOrgSize:    agg.maxGen,
		SizeHistogram: agg.hist,
	}
	if agg.active > 0 {
		stats.MeanFitness = agg.fitSum / float64(agg.active)
	}
	if agg.uni > 0 {
		stats.MeanFitnessUni = agg.fitUni / float64(agg.uni)
	}
	if agg.multi > 0 {
		stats.MeanFitnessMulti = agg.fitMulti / float64(agg.multi)
	}
	return stats, nil
}
