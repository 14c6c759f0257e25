package engine

import (
	"context"
	"math"

	"github.com/ipd-simulator/internal/policy"
	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/parallel"
)

// interaction pairs an initiating agent with the neighbor it drew.
type interaction struct {
	a uint32
	b uint32
}

// updateRecord is one side of an evaluated interaction, ready to commit.
// Records 2i and 2i+1 belong to interaction i; the record index doubles as
// the commit order for same-agent and same-(key,action) collisions.
type updateRecord struct {
	agent     uint32
	action    model.Action
	newMem    model.Memory
	delta     float64
	policyKey uint64
	newQ      float64
}

// interOps holds the structural commands one interaction enqueues: at most a
// merge plus one split, or two splits.
type interOps struct {
	ops [2]deferredOp
	n   uint8
}

func (o *interOps) add(op deferredOp) {
	o.ops[o.n] = op
	o.n++
}

// Step executes one full tick: five barrier-separated passes. Cancellation is
// honored between passes; once Pass 4 begins the tick always commits, so no
// partial tick is ever observable.
func (e *Engine) Step(ctx context.Context) error {
	t := e.tick
	evictionsBefore := e.store.Evictions()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeCancelled, "before pass 1", err)
	}
	if err := e.passRefreshRoots(ctx, t); err != nil {
		return cancelOr(ctx, err)
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeCancelled, "before pass 2", err)
	}
	if err := e.passGeneratePairs(ctx, t); err != nil {
		return cancelOr(ctx, err)
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeCancelled, "before pass 3", err)
	}
	if err := e.passEvaluate(ctx, t); err != nil {
		return cancelOr(ctx, err)
	}

	// The commit boundary: from here on the tick completes regardless of
	// cancellation, so observers only ever see whole ticks.
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeCancelled, "before pass 4", err)
	}
	if err := e.passCommit(); err != nil {
		return err
	}

	applied, err := e.passApplyDeferred()
	if err != nil {
		return err
	}

	stats, err := e.computeStats(t, applied)
	if err != nil {
		return err
	}

	dropped := e.store.EvictToCapacity()
	if dropped > 0 {
		e.log.Debug("tick %d: evicted %d policy entries", t, dropped)
	}
	stats.PolicyEvictions = e.store.Evictions() - evictionsBefore

	e.seqBase += uint64(len(e.records))
	e.tick = t + 1
	e.publishSnapshot(t, stats)
	return nil
}

// cancelOr reports a pass failure as a cancellation when the context went
// away mid-pass; genuine pass errors come through unchanged.
func cancelOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(errors.CodeCancelled, "mid-pass", ctx.Err())
	}
	return err
}

// passRefreshRoots rebuilds the cell -> active-root cache by walking child
// chains from each cell's original agent, with per-tick memoization.
func (e *Engine) passRefreshRoots(ctx context.Context, t int64) error {
	g := e.grid
	ver := uint32(2*uint64(t)) + 1
	return parallel.ForEachChunk(ctx, g.Cells(), e.pool, func(_ context.Context, start, end, _ int) error {
		for c := start; c < end; c++ {
			g.cellOwner[c] = g.resolveRoot(uint32(c), ver)
		}
		return nil
	})
}

// passGeneratePairs lets every active agent draw one random neighboring cell
// owned by somebody else, emitting one interaction per successful draw.
func (e *Engine) passGeneratePairs(ctx context.Context, t int64) error {
	g := e.grid

	// Active agents in ascending index order, built from per-chunk partials
	// folded in chunk order.
	active, err := parallel.ReduceChunks(ctx, g.NumAgents(), e.pool, e.active[:0],
		func(start, end int) []uint32 {
			var local []uint32
			for i := start; i < end; i++ {
				if g.agents[i].Active {
					local = append(local, uint32(i))
				}
			}
			return local
		},
		func(acc, part []uint32) []uint32 { return append(acc, part...) })
	if err != nil {
		return err
	}
	e.active = active

	if cap(e.pairs) < len(active) {
		e.pairs = make([]uint32, len(active))
	}
	pairs := e.pairs[:len(active)]

	err = parallel.ForEachChunk(ctx, len(active), e.pool, func(_ context.Context, start, end, worker int) error {
		cells := e.cellBuf[worker]
		stack := e.stackBuf[worker]
		cands := e.candBuf[worker]
		for i := start; i < end; i++ {
			a := active[i]
			cells, stack = g.collectCells(a, cells[:0], stack)

			// Candidate neighbor cells, ordered by (cell, direction): every
			// adjacency of A's region to a foreign cell counts once.
			cands = cands[:0]
			for _, c := range cells {
				for _, d := range g.dirs {
					nb, ok := g.neighborCell(int(c), d)
					if !ok {
						continue
					}
					if g.cellOwner[nb] != a {
						cands = append(cands, uint32(nb))
					}
				}
			}

			if len(cands) == 0 {
				// Fully enclosed by itself (or a 1x1 grid).
				pairs[i] = NoAgent
				continue
			}
			rng := pairingStream(e.params.Seed, uint64(t), a)
			pairs[i] = g.cellOwner[cands[rng.Intn(len(cands))]]
		}
		e.cellBuf[worker] = cells
		e.stackBuf[worker] = stack
		e.candBuf[worker] = cands
		return nil
	})
	if err != nil {
		return err
	}

	e.inters = e.inters[:0]
	for i, b := range pairs {
		if b != NoAgent {
			e.inters = append(e.inters, interaction{a: active[i], b: b})
		}
	}
	e.pairs = pairs
	return nil
}

// passEvaluate runs every interaction: state keys, ε-greedy action draws,
// rewards, next memories, and proposed Q-updates. It mutates no agent and no
// Q-value; it only inserts missing policy entries and refreshes store recency.
// Results land in per-interaction record and op slots, and the ops are then
// enqueued in interaction order.
func (e *Engine) passEvaluate(ctx context.Context, t int64) error {
	g := e.grid
	n := len(e.inters)

	if cap(e.records) < 2*n {
		e.records = make([]updateRecord, 2*n)
	}
	e.records = e.records[:2*n]
	if cap(e.opsBuf) < n {
		e.opsBuf = make([]interOps, n)
	}
	e.opsBuf = e.opsBuf[:n]

	alpha, gamma, eps := e.params.Alpha, e.params.Gamma, e.params.Epsilon

	err := parallel.ForEachChunk(ctx, n, e.pool, func(_ context.Context, start, end, _ int) error {
		for i := start; i < end; i++ {
			it := e.inters[i]
			agA := &g.agents[it.a]
			agB := &g.agents[it.b]

			memA := agA.Memory()
			memB := agB.Memory()
			keyA := model.StateKey(memA, memB)
			keyB := model.StateKey(memB, memA)
			polA := e.store.LookupOrInsert(keyA)
			polB := e.store.LookupOrInsert(keyB)

			lo, hi := it.a, it.b
			if lo > hi {
				lo, hi = hi, lo
			}
			rng := interactionStream(e.params.Seed, uint64(t), lo, hi)
			actA, qA := polA.SampleAction(eps, &rng)
			actB, qB := polB.SampleAction(eps, &rng)

			rewardA := e.params.Payoff.Reward(actA, actB)
			rewardB := e.params.Payoff.Reward(actB, actA)

			newMemA := memA.Push(actA, int(agA.MemCap))
			newMemB := memB.Push(actB, int(agB.MemCap))

			maxNextA := 0.0
			if p, ok := e.store.Lookup(model.StateKey(newMemA, newMemB)); ok {
				maxNextA = p.MaxQ()
			}
			maxNextB := 0.0
			if p, ok := e.store.Lookup(model.StateKey(newMemB, newMemA)); ok {
				maxNextB = p.MaxQ()
			}

			e.records[2*i] = updateRecord{
				agent:     it.a,
				action:    actA,
				newMem:    newMemA,
				delta:     rewardA,
				policyKey: keyA,
				newQ:      policy.ComputeUpdate(qA, rewardA, maxNextA, alpha, gamma),
			}
			e.records[2*i+1] = updateRecord{
				agent:     it.b,
				action:    actB,
				newMem:    newMemB,
				delta:     rewardB,
				policyKey: keyB,
				newQ:      policy.ComputeUpdate(qB, rewardB, maxNextB, alpha, gamma),
			}

			o := &e.opsBuf[i]
			o.n = 0
			if actA == model.ActionMerge || actB == model.ActionMerge {
				o.add(deferredOp{kind: opMerge, a: it.a, b: it.b})
			}
			if actA == model.ActionSplit && agA.Generation > 1 {
				o.add(deferredOp{kind: opSplit, a: it.a})
			}
			if actB == model.ActionSplit && agB.Generation > 1 {
				o.add(deferredOp{kind: opSplit, a: it.b})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// FIFO enqueue in interaction index order.
	for i := range e.opsBuf {
		for j := uint8(0); j < e.opsBuf[i].n; j++ {
			g.enqueueOp(e.opsBuf[i].ops[j])
		}
	}
	return nil
}

// passCommit applies every update record: fitness delta, memory replacement,
// policy binding, and the Q-write. Agents are sharded across workers by
// index, so all records of one agent commit on one worker in record order;
// same-(key,action) Q-writes resolve by sequence number inside the entry.
func (e *Engine) passCommit() error {
	g := e.grid
	workers := e.pool.MaxWorkers

	shardCfg := parallel.PoolConfig{MaxWorkers: workers, ChunkSize: 1}
	return parallel.ForEachChunk(context.Background(), workers, shardCfg, func(_ context.Context, start, _, _ int) error {
		shard := uint32(start)
		for idx := range e.records {
			rec := &e.records[idx]
			if rec.agent%uint32(workers) != shard {
				continue
			}

			ag := &g.agents[rec.agent]
			ag.Fitness += rec.delta
			if math.IsNaN(ag.Fitness) || math.IsInf(ag.Fitness, 0) {
				return errors.Newf(errors.CodeNonFinite, "agent %d fitness is %v", rec.agent, ag.Fitness)
			}
			ag.SetMemory(rec.newMem)
			ag.PolicyKey = rec.policyKey

			entry := e.store.LookupOrInsert(rec.policyKey)
			if err := entry.ApplyUpdate(rec.action, rec.newQ, e.seqBase+uint64(idx)); err != nil {
				return err
			}
		}
		return nil
	})
}

// appliedOps summarizes Pass 5 for the statistics record.
type appliedOps struct {
	merges    int64
	splits    int64
	conflicts int64
}

// passApplyDeferred drains the deferred-op queue in FIFO order on a single
// thread. Ops that reference an agent already restructured this tick are
// skipped; the first claim wins.
func (e *Engine) passApplyDeferred() (appliedOps, error) {
	g := e.grid
	var out appliedOps

	for _, op := range g.ops {
		switch op.kind {
		case opMerge:
			a, b := op.a, op.b
			if !g.agents[a].Active || !g.agents[b].Active {
				out.conflicts++
				continue
			}
			if err := e.applyMerge(a, b); err != nil {
				return out, err
			}
			out.merges++
		case opSplit:
			c := op.a
			if !g.agents[c].Active || g.agents[c].Generation == 1 {
				out.conflicts++
				continue
			}
			e.applySplit(c)
			out.splits++
		}
	}
	g.ops = g.ops[:0]
	return out, nil
}

// applyMerge creates the super-agent K absorbing A and B. K inherits memory,
// capacity, and policy binding from the fitter parent (ties to the lower
// index) and the summed fitness of both, so merges conserve fitness.
func (e *Engine) applyMerge(a, b uint32) error {
	g := e.grid

	pa, pb := a, b
	if pa > pb {
		pa, pb = pb, pa
	}
	donor := pa
	if g.agents[pb].Fitness > g.agents[pa].Fitness {
		donor = pb
	}

	d := &g.agents[donor]
	k := Agent{
		Fitness:    g.agents[a].Fitness + g.agents[b].Fitness,
		PolicyKey:  d.PolicyKey,
		MemBits:    d.MemBits,
		MemLen:     d.MemLen,
		MemCap:     d.MemCap,
		ParentA:    pa,
		ParentB:    pb,
		Child:      NoAgent,
		Generation: g.agents[pa].Generation + g.agents[pb].Generation,
		OriginCell: g.agents[pa].OriginCell,
		Active:     true,
	}
	if math.IsNaN(k.Fitness) || math.IsInf(k.Fitness, 0) {
		return errors.Newf(errors.CodeNonFinite, "merged fitness of %d+%d is %v", a, b, k.Fitness)
	}

	kIdx := g.appendAgent(k)
	g.agents[a].Active = false
	g.agents[a].Child = kIdx
	g.agents[b].Active = false
	g.agents[b].Child = kIdx
	return nil
}

// applySplit dissolves C back into its two parents. Each parent inherits C's
// policy binding and memory (clipped to its own capacity); the fitness halves
// use a floor/ceil partition with the odd unit going to parent_a, so splits
// conserve fitness exactly.
func (e *Engine) applySplit(c uint32) {
	g := e.grid
	ag := &g.agents[c]

	pa, pb := ag.ParentA, ag.ParentB
	half := math.Floor(ag.Fitness / 2)
	e.reactivate(pa, ag.Fitness-half, ag)
	e.reactivate(pb, half, ag)

	ag.Active = false
	// Keep a path to an active root for stale references to C.
	ag.Child = pa
}

func (e *Engine) reactivate(p uint32, fitness float64, from *Agent) {
	ag := &e.grid.agents[p]
	ag.Active = true
	ag.Child = NoAgent
	ag.Fitness = fitness
	ag.PolicyKey = from.PolicyKey
	ag.SetMemory(from.Memory().Truncate(int(ag.MemCap)))
}
