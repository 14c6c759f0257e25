// Package model defines the core data types of the simulation: actions,
// payoff tables, bit-packed action memories, observation-state keys, and the
// per-tick statistics record.
package model

import (
	"math"

	"github.com/ipd-simulator/pkg/errors"
)

// Action is one of the four moves an agent can play, encoded as a 2-bit code.
type Action uint8

const (
	// ActionCooperate is the classic IPD cooperate move.
	ActionCooperate Action = 0
	// ActionDefect is the classic IPD defect move.
	ActionDefect Action = 1
	// ActionMerge proposes joining the opponent into one organism.
	ActionMerge Action = 2
	// ActionSplit proposes dissolving the player's own organism.
	ActionSplit Action = 3

	// NumActions is the size of the action alphabet.
	NumActions = 4
)

// String returns the single-letter name of the action.
func (a Action) String() string {
	switch a {
	case ActionCooperate:
		return "C"
	case ActionDefect:
		return "D"
	case ActionMerge:
		return "M"
	case ActionSplit:
		return "S"
	default:
		return "?"
	}
}

// Valid reports whether the action is one of the four defined codes.
func (a Action) Valid() bool {
	return a < NumActions
}

// PayoffMatrix maps a pair of actions to the reward for the row player.
// P[selfAction][oppAction] is the reward credited to the player who
// chose selfAction.
type PayoffMatrix [NumActions][NumActions]float64

// StandardPD returns the standard prisoner's dilemma payoffs with zero reward
// on every Merge/Split pairing: (C,C)=3, (C,D)=0, (D,C)=5, (D,D)=1.
func StandardPD() PayoffMatrix {
	var p PayoffMatrix
	p[ActionCooperate][ActionCooperate] = 3
	p[ActionCooperate][ActionDefect] = 0
	p[ActionDefect][ActionCooperate] = 5
	p[ActionDefect][ActionDefect] = 1
	return p
}

// Reward returns the row player's reward for the given action pair.
func (p *PayoffMatrix) Reward(self, opp Action) float64 {
	return p[self][opp]
}

// Validate checks that every payoff entry is finite.
func (p *PayoffMatrix) Validate() error {
	for i := 0; i < NumActions; i++ {
		for j := 0; j < NumActions; j++ {
			if v := p[i][j]; math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Newf(errors.CodeConfigInvalid,
					"payoff[%s][%s] = %v is not finite", Action(i), Action(j), v)
			}
		}
	}
	return nil
}
