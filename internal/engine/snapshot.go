package engine

import (
	"context"

	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/parallel"
)

// Snapshot is the pull API for external writers: a consistent view of the end
// of one tick. Owners and Generations alias engine buffers and remain valid
// until the next Step call; callers that need longer-lived data copy them.
type Snapshot struct {
	Tick   int64
	Width  int
	Height int

	// Owners maps cell index -> owning active agent index.
	Owners []uint32

	// Generations maps cell index -> size of the owning organism.
	Generations []uint32

	Stats model.StepStats
}

// computeStats derives the tick's statistics record: action counts from the
// update records, population aggregates from the agent array, and the
// structural-op summary from Pass 5.
func (e *Engine) computeStats(t int64, applied appliedOps) (model.StepStats, error) {
	g := e.grid

	counts, err := parallel.ReduceChunks(context.Background(), len(e.records), e.pool,
		[model.NumActions]int64{},
		func(start, end int) [model.NumActions]int64 {
			var c [model.NumActions]int64
			for i := start; i < end; i++ {
				c[e.records[i].action]++
			}
			return c
		},
		func(acc, c [model.NumActions]int64) [model.NumActions]int64 {
			for i := range acc {
				acc[i] += c[i]
			}
			return acc
		})
	if err != nil {
		return model.StepStats{}, err
	}

	stats, err := e.statsCalc.Calculate(t, g.NumAgents(), func(i int) (bool, int64, float64) {
		ag := &g.agents[i]
		return ag.Active, int64(ag.Generation), ag.Fitness
	})
	if err != nil {
		return model.StepStats{}, err
	}

	stats.CoopCount = counts[model.ActionCooperate]
	stats.DefectCount = counts[model.ActionDefect]
	stats.MergeCount = counts[model.ActionMerge]
	stats.SplitCount = counts[model.ActionSplit]
	stats.MergesApplied = applied.merges
	stats.SplitsApplied = applied.splits
	stats.DeferredConflicts = applied.conflicts
	return stats, nil
}

// publishSnapshot re-resolves the root cache against the post-Pass-5
// structure (its own memo version) and fills the per-cell generation view, so
// every invariant holds at the published step boundary.
func (e *Engine) publishSnapshot(t int64, stats model.StepStats) {
	g := e.grid
	ver := uint32(2*uint64(t)) + 2

	if cap(e.gens) < g.Cells() {
		e.gens = make([]uint32, g.Cells())
	}
	gens := e.gens[:g.Cells()]

	_ = parallel.ForEachChunk(context.Background(), g.Cells(), e.pool, func(_ context.Context, start, end, _ int) error {
		for c := start; c < end; c++ {
			root := g.resolveRoot(uint32(c), ver)
			g.cellOwner[c] = root
			gens[c] = g.agents[root].Generation
		}
		return nil
	})
	e.gens = gens

	e.snapshot = Snapshot{
		Tick:        t,
		Width:       g.width,
		Height:      g.height,
		Owners:      g.cellOwner,
		Generations: gens,
		Stats:       stats,
	}
}
