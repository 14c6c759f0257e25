package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ipd-simulator/pkg/errors"
)

func TestAction_String(t *testing.T) {
	assert.Equal(t, "C", ActionCooperate.String())
	assert.Equal(t, "D", ActionDefect.String())
	assert.Equal(t, "M", ActionMerge.String())
	assert.Equal(t, "S", ActionSplit.String())
	assert.Equal(t, "?", Action(7).String())
}

func TestAction_Valid(t *testing.T) {
	for a := Action(0); a < NumActions; a++ {
		assert.True(t, a.Valid())
	}
	assert.False(t, Action(4).Valid())
}

func TestStandardPD(t *testing.T) {
	p := StandardPD()

	assert.Equal(t, 3.0, p.Reward(ActionCooperate, ActionCooperate))
	assert.Equal(t, 0.0, p.Reward(ActionCooperate, ActionDefect))
	assert.Equal(t, 5.0, p.Reward(ActionDefect, ActionCooperate))
	assert.Equal(t, 1.0, p.Reward(ActionDefect, ActionDefect))

	// All Merge/Split pairings pay zero.
	for a := Action(0); a < NumActions; a++ {
		assert.Equal(t, 0.0, p.Reward(a, ActionMerge))
		assert.Equal(t, 0.0, p.Reward(a, ActionSplit))
		assert.Equal(t, 0.0, p.Reward(ActionMerge, a))
		assert.Equal(t, 0.0, p.Reward(ActionSplit, a))
	}
}

func TestPayoffMatrix_Validate(t *testing.T) {
	p := StandardPD()
	require.NoError(t, p.Validate())

	p[ActionDefect][ActionCooperate] = math.NaN()
	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetErrorCode(err))

	p[ActionDefect][ActionCooperate] = math.Inf(1)
	require.Error(t, p.Validate())
}

func TestStepStats_ActionCount(t *testing.T) {
	s := StepStats{CoopCount: 1, DefectCount: 2, MergeCount: 3, SplitCount: 4}
	assert.Equal(t, int64(1), s.ActionCount(ActionCooperate))
	assert.Equal(t, int64(2), s.ActionCount(ActionDefect))
	assert.Equal(t, int64(3), s.ActionCount(ActionMerge))
	assert.Equal(t, int64(4), s.ActionCount(ActionSplit))
	assert.Equal(t, int64(10), s.TotalActions())
}
