package engine

import (
	"context"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/ipd-simulator/internal/policy"
	"github.com/ipd-simulator/internal/statistics"
	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/parallel"
	"github.com/ipd-simulator/pkg/utils"
)

// Params are the engine construction parameters.
type Params struct {
	Width  int
	Height int

	// Steps is the total number of ticks a Run executes.
	Steps int64

	Alpha   float64
	Gamma   float64
	Epsilon float64

	Payoff model.PayoffMatrix

	// MemoryCapacity is the per-agent action history capacity, 1..16.
	MemoryCapacity int

	// PolicyCapacity bounds the shared policy store entry count.
	PolicyCapacity int

	Seed uint64

	// Neighborhood is 4 or 8; boundaries are closed.
	Neighborhood int

	// InitialFitness seeds every cell agent with a small positive fitness.
	InitialFitness float64

	Pool   parallel.PoolConfig
	Logger utils.Logger
}

// DefaultParams returns a runnable parameter set with the standard PD payoff.
func DefaultParams() Params {
	return Params{
		Width:          128,
		Height:         128,
		Steps:          100,
		Alpha:          0.1,
		Gamma:          0.9,
		Epsilon:        0.1,
		Payoff:         model.StandardPD(),
		MemoryCapacity: 4,
		PolicyCapacity: 1 << 20,
		Seed:           1,
		Neighborhood:   Neighborhood4,
		InitialFitness: 0.1,
		Pool:           parallel.DefaultPoolConfig(),
	}
}

// Validate checks the parameters, reporting the first violation as a
// CONFIG_INVALID error.
func (p *Params) Validate() error {
	switch {
	case p.Width < 1 || p.Height < 1:
		return errors.Newf(errors.CodeConfigInvalid, "grid dimensions %dx%d must be >= 1x1", p.Width, p.Height)
	case p.Steps < 0:
		return errors.Newf(errors.CodeConfigInvalid, "steps %d must be >= 0", p.Steps)
	case !(p.Alpha > 0 && p.Alpha <= 1):
		return errors.Newf(errors.CodeConfigInvalid, "alpha %v must be in (0,1]", p.Alpha)
	case p.Gamma < 0 || p.Gamma > 1 || math.IsNaN(p.Gamma):
		return errors.Newf(errors.CodeConfigInvalid, "gamma %v must be in [0,1]", p.Gamma)
	case p.Epsilon < 0 || p.Epsilon > 1 || math.IsNaN(p.Epsilon):
		return errors.Newf(errors.CodeConfigInvalid, "epsilon %v must be in [0,1]", p.Epsilon)
	case p.MemoryCapacity < 1 || p.MemoryCapacity > model.MaxMemoryCapacity:
		return errors.Newf(errors.CodeConfigInvalid, "memory capacity %d must be in 1..%d", p.MemoryCapacity, model.MaxMemoryCapacity)
	case p.PolicyCapacity < 1:
		return errors.Newf(errors.CodeConfigInvalid, "policy store capacity %d must be >= 1", p.PolicyCapacity)
	case p.Neighborhood != Neighborhood4 && p.Neighborhood != Neighborhood8:
		return errors.Newf(errors.CodeConfigInvalid, "neighborhood %d must be 4 or 8", p.Neighborhood)
	case math.IsNaN(p.InitialFitness) || math.IsInf(p.InitialFitness, 0) || p.InitialFitness < 0:
		return errors.Newf(errors.CodeConfigInvalid, "initial fitness %v must be finite and >= 0", p.InitialFitness)
	}
	return p.Payoff.Validate()
}

// Engine drives the five-pass step pipeline over one grid. Engines are
// self-contained: two instances share no state and may run concurrently.
type Engine struct {
	params Params
	pool   parallel.PoolConfig
	log    utils.Logger

	grid      *Grid
	store     *policy.Store
	statsCalc *statistics.StepStatsCalculator

	tick    int64
	seqBase uint64

	// Scratch reused across ticks.
	active  []uint32
	pairs   []uint32
	inters  []interaction
	records []updateRecord
	opsBuf  []interOps

	// Per-worker scratch for the pairing pass.
	candBuf  [][]uint32
	cellBuf  [][]uint32
	stackBuf [][]uint32
	gens     []uint32

	snapshot Snapshot
}

// New constructs an engine, validating parameters first.
func New(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Logger == nil {
		p.Logger = &utils.NullLogger{}
	}
	pool := p.Pool
	if pool.MaxWorkers <= 0 || pool.ChunkSize <= 0 {
		def := parallel.DefaultPoolConfig()
		if pool.MaxWorkers <= 0 {
			pool.MaxWorkers = def.MaxWorkers
		}
		if pool.ChunkSize <= 0 {
			pool.ChunkSize = def.ChunkSize
		}
	}

	store, err := policy.NewStore(p.PolicyCapacity)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		params:    p,
		pool:      pool,
		log:       p.Logger,
		grid:      newGrid(p.Width, p.Height, p.Neighborhood, uint8(p.MemoryCapacity), p.InitialFitness),
		store:     store,
		statsCalc: statistics.NewStepStatsCalculator(statistics.WithPool(pool)),
		candBuf:   make([][]uint32, pool.MaxWorkers),
		cellBuf:   make([][]uint32, pool.MaxWorkers),
		stackBuf:  make([][]uint32, pool.MaxWorkers),
	}

	e.log.Info("engine ready: %sx%s grid, %s cells, %d workers",
		humanize.Comma(int64(p.Width)), humanize.Comma(int64(p.Height)),
		humanize.Comma(int64(p.Width*p.Height)), pool.MaxWorkers)

	e.snapshot = Snapshot{
		Width:  p.Width,
		Height: p.Height,
		Tick:   -1,
	}
	return e, nil
}

// Tick returns the number of completed steps.
func (e *Engine) Tick() int64 {
	return e.tick
}

// Grid exposes the grid for snapshot consumers and tests.
func (e *Engine) Grid() *Grid {
	return e.grid
}

// Store exposes the policy store for diagnostics.
func (e *Engine) Store() *policy.Store {
	return e.store
}

// Snapshot returns the view of the last completed tick. The owner and
// generation slices alias engine state and stay consistent until the next
// Step call.
func (e *Engine) Snapshot() *Snapshot {
	return &e.snapshot
}

// Run executes the configured number of steps, invoking observer (when
// non-nil) with the snapshot after every tick. It stops early when no active
// agents remain or the context is cancelled between passes.
func (e *Engine) Run(ctx context.Context, observer func(*Snapshot) error) error {
	for i := int64(0); i < e.params.Steps; i++ {
		if err := e.Step(ctx); err != nil {
			return err
		}
		if observer != nil {
			if err := observer(&e.snapshot); err != nil {
				return err
			}
		}
		if e.snapshot.Stats.Active == 0 {
			e.log.Warn("no active agents remain at tick %d, stopping", e.tick)
			return nil
		}
	}
	return nil
}
