// Package engine implements the simulation core: the grid/agent data model,
// the five-pass step pipeline, deferred merge/split commits, and snapshots.
package engine

import (
	"github.com/ipd-simulator/pkg/model"
)

// NoAgent is the sentinel for an absent parent/child link.
const NoAgent = ^uint32(0)

// Agent is one occupant record in the agent array. Records are padded to a
// 64-byte cache line so parallel commits on neighboring indices do not false
// share. Agents are append-only within a run; fields mutate only in the
// commit and deferred-op passes.
type Agent struct {
	Fitness   float64
	PolicyKey uint64

	MemBits uint32

	ParentA uint32
	ParentB uint32
	Child   uint32

	// Generation is the number of original cells subsumed by this agent;
	// 1 for unicellular.
	Generation uint32

	// OriginCell is the grid cell this agent was born on. For a merged agent
	// it is the lower-indexed parent's origin.
	OriginCell uint32

	MemLen uint8
	MemCap uint8
	Active bool

	_ [21]byte
}

// Memory returns the agent's packed action memory.
func (a *Agent) Memory() model.Memory {
	return model.Memory{Bits: a.MemBits, Length: a.MemLen}
}

// SetMemory replaces the agent's packed action memory.
func (a *Agent) SetMemory(m model.Memory) {
	a.MemBits = m.Bits
	a.MemLen = m.Length
}

// IsRoot reports whether the agent has not been absorbed into a super-agent.
func (a *Agent) IsRoot() bool {
	return a.Child == NoAgent
}

func newCellAgent(cell uint32, memCap uint8, fitness float64) Agent {
	return Agent{
		Fitness:    fitness,
		ParentA:    NoAgent,
		ParentB:    NoAgent,
		Child:      NoAgent,
		Generation: 1,
		OriginCell: cell,
		MemCap:     memCap,
		Active:     true,
	}
}
