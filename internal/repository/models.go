// Package repository provides optional persistence of runs and per-step
// statistics.
package repository

import (
	"time"

	"github.com/ipd-simulator/pkg/model"
)

// SimulationRun represents the simulation_runs table: one row per run with
// the parameters needed to reproduce it.
type SimulationRun struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Width        int        `gorm:"column:width"`
	Height       int        `gorm:"column:height"`
	Steps        int64      `gorm:"column:steps"`
	Seed         uint64     `gorm:"column:seed"`
	Alpha        float64    `gorm:"column:alpha"`
	Gamma        float64    `gorm:"column:gamma"`
	Epsilon      float64    `gorm:"column:epsilon"`
	Neighborhood int        `gorm:"column:neighborhood"`
	Status       string     `gorm:"column:status;type:varchar(32)"`
	CreateTime   time.Time  `gorm:"column:create_time;autoCreateTime"`
	EndTime      *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for SimulationRun.
func (SimulationRun) TableName() string {
	return "simulation_runs"
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// StepRecord represents the simulation_steps table: one row per tick.
type StepRecord struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID            int64   `gorm:"column:run_id;index"`
	Step             int64   `gorm:"column:step"`
	Active           int64   `gorm:"column:active"`
	Unicellular      int64   `gorm:"column:unicellular"`
	Multicellular    int64   `gorm:"column:multicellular"`
	MeanFitness      float64 `gorm:"column:mean_fitness"`
	MeanFitnessUni   float64 `gorm:"column:mean_fitness_uni"`
	MeanFitnessMulti float64 `gorm:"column:mean_fitness_multi"`
	CoopCount        int64   `gorm:"column:coop_count"`
	DefectCount      int64   `gorm:"column:defect_count"`
	MergeCount       int64   `gorm:"column:merge_count"`
	SplitCount       int64   `gorm:"column:split_count"`
	MaxOrgSize       int64   `gorm:"column:max_org_size"`
	MergesApplied    int64   `gorm:"column:merges_applied"`
	SplitsApplied    int64   `gorm:"column:splits_applied"`
}

// TableName returns the table name for StepRecord.
func (StepRecord) TableName() string {
	return "simulation_steps"
}

// NewStepRecord converts a statistics record for persistence.
func NewStepRecord(runID int64, s *model.StepStats) *StepRecord {
	return &StepRecord{
		RunID:            runID,
		Step:             s.Step,
		Active:           s.Active,
		Unicellular:      s.Unicellular,
		Multicellular:    s.Multicellular,
		MeanFitness:      s.MeanFitness,
		MeanFitnessUni:   s.MeanFitnessUni,
		MeanFitnessMulti: s.MeanFitnessMulti,
		CoopCount:        s.CoopCount,
		DefectCount:      s.DefectCount,
		MergeCount:       s.MergeCount,
		SplitCount:       s.SplitCount,
		MaxOrgSize:       s.MaxOrgSize,
		MergesApplied:    s.MergesApplied,
		SplitsApplied:    s.SplitsApplied,
	}
}
