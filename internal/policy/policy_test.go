package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
)

// fixedSampler returns scripted values, for deterministic sampling tests.
type fixedSampler struct {
	floats []float64
	ints   []int
}

func (f *fixedSampler) Float64() float64 {
	v := f.floats[0]
	f.floats = f.floats[1:]
	return v
}

func (f *fixedSampler) Intn(int) int {
	v := f.ints[0]
	f.ints = f.ints[1:]
	return v
}

func TestCompactPolicy_ArgmaxTieBreak(t *testing.T) {
	var p CompactPolicy
	// All zero: the lowest action code wins.
	assert.Equal(t, model.ActionCooperate, p.ArgmaxAction())

	p.q[model.ActionDefect] = 1.0
	p.q[model.ActionSplit] = 1.0
	assert.Equal(t, model.ActionDefect, p.ArgmaxAction(), "tie breaks to lowest code")

	p.q[model.ActionSplit] = 2.0
	assert.Equal(t, model.ActionSplit, p.ArgmaxAction())
}

func TestCompactPolicy_SampleAction(t *testing.T) {
	var p CompactPolicy
	p.q[model.ActionMerge] = 5.0

	// ε=0 never consults the rng for exploration.
	got, q := p.SampleAction(0, &fixedSampler{})
	assert.Equal(t, model.ActionMerge, got)
	assert.Equal(t, 5.0, q)
	assert.Equal(t, 0.0, p.LastEpsilon())

	// Draw below ε explores uniformly.
	got, q = p.SampleAction(0.5, &fixedSampler{floats: []float64{0.2}, ints: []int{3}})
	assert.Equal(t, model.ActionSplit, got)
	assert.Equal(t, 0.0, q)
	assert.Equal(t, 0.5, p.LastEpsilon())

	// Draw at or above ε exploits.
	got, _ = p.SampleAction(0.5, &fixedSampler{floats: []float64{0.9}})
	assert.Equal(t, model.ActionMerge, got)
}

func TestComputeUpdate(t *testing.T) {
	// (1-α)Q + α(r + γ·maxNext) with α=0.2, γ=0.9.
	got := ComputeUpdate(1.0, 3.0, 2.0, 0.2, 0.9)
	assert.InDelta(t, 0.8*1.0+0.2*(3.0+0.9*2.0), got, 1e-12)

	// α=1 replaces entirely.
	assert.InDelta(t, 7.0, ComputeUpdate(100, 7, 0, 1.0, 0.9), 1e-12)
}

func TestCompactPolicy_ApplyUpdate(t *testing.T) {
	var p CompactPolicy

	require.NoError(t, p.ApplyUpdate(model.ActionDefect, 1.5, 1))
	assert.Equal(t, 1.5, p.Q(model.ActionDefect))
	assert.Equal(t, uint32(1), p.Visits())

	// Higher sequence wins.
	require.NoError(t, p.ApplyUpdate(model.ActionDefect, 2.5, 3))
	assert.Equal(t, 2.5, p.Q(model.ActionDefect))

	// Stale sequence is dropped but still counts a visit.
	require.NoError(t, p.ApplyUpdate(model.ActionDefect, 9.9, 2))
	assert.Equal(t, 2.5, p.Q(model.ActionDefect))
	assert.Equal(t, uint32(3), p.Visits())
}

func TestCompactPolicy_ApplyUpdate_NonFinite(t *testing.T) {
	var p CompactPolicy

	err := p.ApplyUpdate(model.ActionCooperate, math.NaN(), 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNonFinite, apperrors.GetErrorCode(err))

	err = p.ApplyUpdate(model.ActionCooperate, math.Inf(-1), 2)
	require.Error(t, err)

	assert.Equal(t, 0.0, p.Q(model.ActionCooperate), "rejected values never land")
}

func TestCompactPolicy_MaxQ(t *testing.T) {
	var p CompactPolicy
	assert.Equal(t, 0.0, p.MaxQ())

	p.q = [model.NumActions]float64{-3, -1, -2, -5}
	assert.Equal(t, -1.0, p.MaxQ())
}
