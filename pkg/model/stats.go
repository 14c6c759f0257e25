package model

// StepStats is the per-tick statistics record published at each step boundary.
// The engine computes one and retains nothing; writers consume it.
type StepStats struct {
	Step int64 `json:"step"`

	// Population counts over active agents.
	Active        int64 `json:"active"`
	Unicellular   int64 `json:"unicellular"`
	Multicellular int64 `json:"multicellular"`

	// Fitness means over active agents; zero when the divisor population
	// is empty.
	MeanFitness      float64 `json:"mean_fitness"`
	MeanFitnessUni   float64 `json:"mean_fitness_uni"`
	MeanFitnessMulti float64 `json:"mean_fitness_multi"`

	// Actions chosen this tick, both sides of every interaction counted.
	CoopCount   int64 `json:"coop_count"`
	DefectCount int64 `json:"defect_count"`
	MergeCount  int64 `json:"merge_count"`
	SplitCount  int64 `json:"split_count"`

	// MaxOrgSize is the largest organism generation this tick.
	MaxOrgSize int64 `json:"max_org_size"`

	// SizeHistogram maps organism size (generation) to the number of active
	// agents of that size.
	SizeHistogram map[int64]int64 `json:"size_histogram,omitempty"`

	// Structural ops actually applied this tick, as opposed to the M/S
	// action counts above.
	MergesApplied int64 `json:"merges_applied"`
	SplitsApplied int64 `json:"splits_applied"`

	// Diagnostics: deferred ops skipped as stale, and policy-store evictions.
	DeferredConflicts int64 `json:"deferred_conflicts"`
	PolicyEvictions   int64 `json:"policy_evictions"`
}

// ActionCount returns the count recorded for the given action this tick.
func (s *StepStats) ActionCount(a Action) int64 {
	switch a {
	case ActionCooperate:
		return s.CoopCount
	case ActionDefect:
		return s.DefectCount
	case ActionMerge:
		return s.MergeCount
	case ActionSplit:
		return s.SplitCount
	default:
		return 0
	}
}

// TotalActions returns the number of action choices recorded this tick.
func (s *StepStats) TotalActions() int64 {
	return s.CoopCount + s.DefectCount + s.MergeCount + s.SplitCount
}
