package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	models "idx-flow/database/models_pkg"
)

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *Database
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *Database) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run in running state.
func (r *RunRepository) CreateRun(ctx context.Context, run *PipelineRun) error {
	if run.ID == "" {
		return NewValidationErrorWithValue("id", "must not be empty", run.ID)
	}
	run.Status = models.RunStatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := r.db.db.WithContext(ctx).Create(run).Error; err != nil {
		return WrapDBError("CreateRun", err)
	}
	return nil
}

// UpdateProgress raises the progress of a running run. Progress never moves backwards
// and terminal runs are left untouched.
func (r *RunRepository) UpdateProgress(ctx context.Context, id string, percent int, note string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	err := r.db.db.WithContext(ctx).Model(&PipelineRun{}).
		Where("id = ? AND status = ? AND progress_percent <= ?", id, models.RunStatusRunning, percent).
		Updates(map[string]interface{}{
			"progress_percent": percent,
			"note":             note,
		}).Error
	if err != nil {
		return WrapDBError("UpdateProgress", err)
	}
	return nil
}

// Complete sets the terminal completed state. Returns NotFoundError when the run
// does not exist or has already reached a terminal state.
func (r *RunRepository) Complete(ctx context.Context, id string, success, skipped, failed int) error {
	now := time.Now()
	return r.finish(ctx, "Complete", id, map[string]interface{}{
		"status":           models.RunStatusCompleted,
		"progress_percent": 100,
		"success":          success,
		"skipped":          skipped,
		"failed":           failed,
		"finished_at":      now,
	})
}

// Fail sets the terminal failed state.
func (r *RunRepository) Fail(ctx context.Context, id string, message string) error {
	now := time.Now()
	return r.finish(ctx, "Fail", id, map[string]interface{}{
		"status":      models.RunStatusFailed,
		"message":     message,
		"finished_at": now,
	})
}

func (r *RunRepository) finish(ctx context.Context, op, id string, fields map[string]interface{}) error {
	res := r.db.db.WithContext(ctx).Model(&PipelineRun{}).
		Where("id = ? AND status = ?", id, models.RunStatusRunning).
		Updates(fields)
	if res.Error != nil {
		return WrapDBError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("running pipeline run", id)
	}
	return nil
}

// GetRun loads one run by id.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*PipelineRun, error) {
	var run PipelineRun
	err := r.db.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("pipeline run", id)
	}
	if err != nil {
		return nil, WrapDBError("GetRun", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, optionally filtered by feature.
func (r *RunRepository) ListRuns(ctx context.Context, feature string, limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	if limit > MaxRunLimit {
		limit = MaxRunLimit
	}

	query := r.db.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if feature != "" {
		query = query.Where("feature = ?", feature)
	}

	var runs []PipelineRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, nil
}

// FailStaleRuns marks runs left in running state by a crashed process as failed.
func (r *RunRepository) FailStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.db.WithContext(ctx).Model(&PipelineRun{}).
		Where("status = ? AND started_at < ?", models.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      models.RunStatusFailed,
			"message":     "abandoned: process exited before completion",
			"finished_at": time.Now(),
		})
	if res.Error != nil {
		return 0, WrapDBError("FailStaleRuns", res.Error)
	}
	return res.RowsAffected, nil
}
