package engine

import (
	"sync/atomic"
)

// Neighborhood connectivities. Boundaries are closed (no wraparound).
const (
	Neighborhood4 = 4
	Neighborhood8 = 8
)

var (
	dirs4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	dirs8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// Grid owns the agent array, the per-cell active-root cache, the neighbor
// topology, and the deferred structural-op queue.
//
// The agent array is append-only within a run: the first width*height entries
// are the original cell agents (agent index == cell index), every later entry
// was created by a Merge. Parent links never change once written, so an
// active agent's constituent cells are exactly the original-agent leaves of
// its parent tree.
type Grid struct {
	width  int
	height int
	dirs   [][2]int

	agents []Agent

	// cellOwner maps cell index -> index of the active agent owning the cell.
	// Rebuilt wholesale in Pass 1.
	cellOwner []uint32

	// Per-tick memo for root resolution: for an inactive agent, rootMemo
	// holds its active root and rootTick the memo version it was written for
	// (2t+1 in Pass 1 of tick t, 2t+2 when the snapshot re-resolves after
	// Pass 5). Memoizing per version instead of compressing child links
	// keeps parent_b's cells recoverable after a Split.
	rootMemo []uint32
	rootTick []uint32

	ops []deferredOp
}

type opKind uint8

const (
	opMerge opKind = iota
	opSplit
)

// deferredOp is a queued structural mutation, applied in FIFO order by the
// single-threaded Pass 5.
type deferredOp struct {
	kind opKind
	a    uint32
	b    uint32
}

func newGrid(width, height, neighborhood int, memCap uint8, initialFitness float64) *Grid {
	dirs := dirs4
	if neighborhood == Neighborhood8 {
		dirs = dirs8
	}

	cells := width * height
	g := &Grid{
		width:     width,
		height:    height,
		dirs:      dirs,
		agents:    make([]Agent, cells, 2*cells),
		cellOwner: make([]uint32, cells),
		rootMemo:  make([]uint32, cells, 2*cells),
		rootTick:  make([]uint32, cells, 2*cells),
	}
	for c := 0; c < cells; c++ {
		g.agents[c] = newCellAgent(uint32(c), memCap, initialFitness)
		g.cellOwner[c] = uint32(c)
	}
	return g
}

// Cells returns the number of grid cells.
func (g *Grid) Cells() int {
	return g.width * g.height
}

// NumAgents returns the current length of the agent array.
func (g *Grid) NumAgents() int {
	return len(g.agents)
}

// Agent returns the agent record at index i.
func (g *Grid) Agent(i uint32) *Agent {
	return &g.agents[i]
}

// Owner returns the active agent currently owning the cell.
func (g *Grid) Owner(cell int) uint32 {
	return g.cellOwner[cell]
}

// neighborCell returns the neighbor of cell in direction d, or false when the
// step leaves the grid.
func (g *Grid) neighborCell(cell int, d [2]int) (int, bool) {
	x := cell%g.width + d[0]
	y := cell/g.width + d[1]
	if x < 0 || x >= g.width || y < 0 || y >= g.height {
		return 0, false
	}
	return y*g.width + x, true
}

// resolveRoot walks the child chain from agent a to its active root,
// memoizing the result for the first 64 inactive agents on the path. The memo is
// valid for one tick only (structure changes in Pass 5); version checks make
// stale entries invisible. Safe for concurrent use: racing resolvers write
// identical values.
func (g *Grid) resolveRoot(a uint32, tickVer uint32) uint32 {
	if g.agents[a].Active {
		return a
	}

	var path [64]uint32
	depth := 0
	cur := a
	for !g.agents[cur].Active {
		if atomic.LoadUint32(&g.rootTick[cur]) == tickVer {
			cur = atomic.LoadUint32(&g.rootMemo[cur])
			break
		}
		if depth < len(path) {
			path[depth] = cur
			depth++
		}
		cur = g.agents[cur].Child
	}

	for i := 0; i < depth; i++ {
		atomic.StoreUint32(&g.rootMemo[path[i]], cur)
		atomic.StoreUint32(&g.rootTick[path[i]], tickVer)
	}
	return cur
}

// appendAgent appends a new agent and grows the memo arrays alongside.
func (g *Grid) appendAgent(a Agent) uint32 {
	idx := uint32(len(g.agents))
	g.agents = append(g.agents, a)
	g.rootMemo = append(g.rootMemo, 0)
	g.rootTick = append(g.rootTick, 0)
	return idx
}

// enqueueOp appends a deferred op; Pass 3 enqueues per-interaction in index
// order, so the queue order is deterministic.
func (g *Grid) enqueueOp(op deferredOp) {
	g.ops = append(g.ops, op)
}

// collectCells appends the constituent cells of agent a (the original-agent
// leaves of its parent tree) to buf in deterministic order: parent_a subtree
// before parent_b subtree. stack is caller-owned scratch; both slices are
// returned for reuse.
func (g *Grid) collectCells(a uint32, buf, stack []uint32) ([]uint32, []uint32) {
	nCells := uint32(g.Cells())
	stack = append(stack[:0], a)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n < nCells {
			buf = append(buf, n)
			continue
		}
		// parent_b below parent_a so parent_a pops first.
		stack = append(stack, g.agents[n].ParentB, g.agents[n].ParentA)
	}
	return buf, stack
}
