package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
)

// RunRepository defines the persistence operations for simulation runs.
type RunRepository interface {
	// CreateRun inserts a new run row and fills its ID.
	CreateRun(ctx context.Context, run *SimulationRun) error

	// SaveStep appends one per-tick statistics row for a run.
	SaveStep(ctx context.Context, runID int64, stats *model.StepStats) error

	// FinishRun marks a run completed or failed.
	FinishRun(ctx context.Context, runID int64, status string) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID int64) (*SimulationRun, error)

	// ListSteps returns a run's step rows in tick order.
	ListSteps(ctx context.Context, runID int64) ([]StepRecord, error)
}

// GormRunRepository implements RunRepository with GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a repository and migrates its tables.
func NewGormRunRepository(db *gorm.DB) (*GormRunRepository, error) {
	if err := db.AutoMigrate(&SimulationRun{}, &StepRecord{}); err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "migrate schema", err)
	}
	return &GormRunRepository{db: db}, nil
}

// CreateRun inserts a new run row and fills its ID.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *SimulationRun) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "create run", err)
	}
	return nil
}

// SaveStep appends one per-tick statistics row for a run.
func (r *GormRunRepository) SaveStep(ctx context.Context, runID int64, stats *model.StepStats) error {
	rec := NewStepRecord(runID, stats)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(errors.CodeDatabaseError,
			fmt.Sprintf("save step %d of run %d", stats.Step, runID), err)
	}
	return nil
}

// FinishRun marks a run completed or failed.
func (r *GormRunRepository) FinishRun(ctx context.Context, runID int64, status string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&SimulationRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":   status,
			"end_time": &now,
		})
	if result.Error != nil {
		return errors.Wrap(errors.CodeDatabaseError, "finish run", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.CodeDatabaseError, "run %d not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *GormRunRepository) GetRun(ctx context.Context, runID int64) (*SimulationRun, error) {
	var run SimulationRun
	err := r.db.WithContext(ctx).First(&run, runID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Newf(errors.CodeDatabaseError, "run %d not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "get run", err)
	}
	return &run, nil
}

// ListSteps returns a run's step rows in tick order.
func (r *GormRunRepository) ListSteps(ctx context.Context, runID int64) ([]StepRecord, error) {
	var steps []StepRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("step ASC").
		Find(&steps).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "list steps", err)
	}
	return steps, nil
}
