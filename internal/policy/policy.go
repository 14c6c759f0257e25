// Package policy implements the shared Q-table: compact per-observation-state
// policies and the bounded concurrent store that deduplicates them across
// agents.
package policy

import (
	"math"
	"sync"

	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
)

// Sampler is the randomness source used for ε-greedy action selection.
type Sampler interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// CompactPolicy holds the 4 Q-values of one observation state plus visit and
// exploration metadata. Entries are shared by every agent currently in the
// same observation state; all access serializes on the entry mutex. Shared
// entries are rare per step, so the contention window stays short.
type CompactPolicy struct {
	mu sync.Mutex

	q           [model.NumActions]float64
	visits      uint32
	lastEpsilon float64

	// seq records, per action, the interaction sequence of the last committed
	// write. Commits carry precomputed values, so dropping writes that lost
	// the sequence race leaves exactly the highest-sequence value in place
	// regardless of thread schedule.
	seq [model.NumActions]uint64
}

// Q returns the Q-value for the given action.
func (p *CompactPolicy) Q(a model.Action) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q[a]
}

// QValues returns a copy of the 4 Q-values.
func (p *CompactPolicy) QValues() [model.NumActions]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q
}

// Visits returns the number of committed updates.
func (p *CompactPolicy) Visits() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visits
}

// LastEpsilon returns the exploration rate in effect at the last sampling.
func (p *CompactPolicy) LastEpsilon() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastEpsilon
}

// MaxQ returns the maximum of the 4 Q-values.
func (p *CompactPolicy) MaxQ() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxQLocked()
}

func (p *CompactPolicy) maxQLocked() float64 {
	m := p.q[0]
	for _, v := range p.q[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// ArgmaxAction returns the action with the highest Q-value; ties break toward
// the lowest action code, so the result is fully determined by the Q vector.
func (p *CompactPolicy) ArgmaxAction() model.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.argmaxLocked()
}

func (p *CompactPolicy) argmaxLocked() model.Action {
	best := model.Action(0)
	for a := model.Action(1); a < model.NumActions; a++ {
		if p.q[a] > p.q[best] {
			best = a
		}
	}
	return best
}

// SampleAction draws an action ε-greedily: with probability 1−ε the argmax
// (lowest code on ties), otherwise a uniformly random action. The draw is
// deterministic given the sampler state. Returns the drawn action and the
// current Q-value of that action, read atomically with the draw.
func (p *CompactPolicy) SampleAction(epsilon float64, rng Sampler) (model.Action, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastEpsilon = epsilon
	if epsilon > 0 && rng.Float64() < epsilon {
		a := model.Action(rng.Intn(model.NumActions))
		return a, p.q[a]
	}
	a := p.argmaxLocked()
	return a, p.q[a]
}

// ComputeUpdate returns the Q-learning target for one action:
// (1−α)·Q(action) + α·(reward + γ·maxNextQ). Pure; the caller commits the
// result through ApplyUpdate.
func ComputeUpdate(q, reward, maxNextQ, alpha, gamma float64) float64 {
	return (1-alpha)*q + alpha*(reward+gamma*maxNextQ)
}

// ApplyUpdate commits a precomputed Q-value for the action under the entry
// mutex. seq is the global interaction sequence of the originating update;
// when several commits target the same (entry, action), only the one with the
// highest sequence leaves its value in place, which matches committing them
// in interaction order. A non-finite value is a programmer error and is
// rejected so the engine can abort the run.
func (p *CompactPolicy) ApplyUpdate(a model.Action, newQ float64, seq uint64) error {
	if math.IsNaN(newQ) || math.IsInf(newQ, 0) {
		return errors.Newf(errors.CodeNonFinite, "q-value for action %s is %v", a, newQ)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.visits++
	if seq >= p.seq[a] {
		p.q[a] = newQ
		p.seq[a] = seq
	}
	return nil
}
