// Package tracker records the status of pipeline runs.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"idx-flow/batch"
	"idx-flow/database"
	models "idx-flow/database/models_pkg"
)

// Tracker is the run status sink used by the pipeline.
type Tracker interface {
	CreateRun(ctx context.Context, feature, trigger string) (string, error)
	UpdateProgress(ctx context.Context, id string, percent int, note string) error
	MarkCompleted(ctx context.Context, id string, stats batch.Stats) error
	MarkFailed(ctx context.Context, id string, message string) error
}

// Reader exposes stored runs to the API.
type Reader interface {
	GetRun(ctx context.Context, id string) (*database.PipelineRun, error)
	ListRuns(ctx context.Context, feature string, limit int) ([]database.PipelineRun, error)
}

// RunStore is the part of database.RunRepository the tracker writes through.
type RunStore interface {
	Reader
	CreateRun(ctx context.Context, run *database.PipelineRun) error
	UpdateProgress(ctx context.Context, id string, percent int, note string) error
	Complete(ctx context.Context, id string, success, skipped, failed int) error
	Fail(ctx context.Context, id string, message string) error
}

// GormTracker persists runs in pipeline_runs.
type GormTracker struct {
	repo RunStore
}

// NewGormTracker creates a tracker on a run repository.
func NewGormTracker(repo RunStore) *GormTracker {
	return &GormTracker{repo: repo}
}

// CreateRun inserts a running run and returns its id.
func (t *GormTracker) CreateRun(ctx context.Context, feature, trigger string) (string, error) {
	run := &database.PipelineRun{
		ID:        uuid.NewString(),
		Feature:   feature,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	if err := t.repo.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("CreateRun: %w", err)
	}
	return run.ID, nil
}

// UpdateProgress bumps progress.
func (t *GormTracker) UpdateProgress(ctx context.Context, id string, percent int, note string) error {
	return t.repo.UpdateProgress(ctx, id, percent, note)
}

// MarkCompleted stores the tallies and the completed status.
func (t *GormTracker) MarkCompleted(ctx context.Context, id string, stats batch.Stats) error {
	return t.repo.Complete(ctx, id, stats.Success, stats.Skipped, stats.Failed)
}

// MarkFailed stores the failure message.
func (t *GormTracker) MarkFailed(ctx context.Context, id string, message string) error {
	return t.repo.Fail(ctx, id, message)
}

// GetRun implements Reader.
func (t *GormTracker) GetRun(ctx context.Context, id string) (*database.PipelineRun, error) {
	return t.repo.GetRun(ctx, id)
}

// ListRuns implements Reader.
func (t *GormTracker) ListRuns(ctx context.Context, feature string, limit int) ([]database.PipelineRun, error) {
	return t.repo.ListRuns(ctx, feature, limit)
}

// MemoryTracker keeps runs in process. Used when no database is configured.
type MemoryTracker struct {
	mu   sync.RWMutex
	runs map[string]*database.PipelineRun
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{runs: make(map[string]*database.PipelineRun)}
}

// CreateRun implements Tracker.
func (m *MemoryTracker) CreateRun(_ context.Context, feature, trigger string) (string, error) {
	run := &database.PipelineRun{
		ID:        uuid.NewString(),
		Feature:   feature,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}
	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()
	return run.ID, nil
}

func (m *MemoryTracker) running(id string) (*database.PipelineRun, error) {
	run, ok := m.runs[id]
	if !ok || run.Status != models.RunStatusRunning {
		return nil, database.NewNotFoundErrorWithID("running pipeline run", id)
	}
	return run, nil
}

// UpdateProgress implements Tracker. Progress never decreases.
func (m *MemoryTracker) UpdateProgress(_ context.Context, id string, percent int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, err := m.running(id)
	if err != nil {
		return nil
	}
	if percent > 100 {
		percent = 100
	}
	if percent >= run.ProgressPercent {
		run.ProgressPercent = percent
		run.Note = note
	}
	return nil
}

// MarkCompleted implements Tracker.
func (m *MemoryTracker) MarkCompleted(_ context.Context, id string, stats batch.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, err := m.running(id)
	if err != nil {
		return err
	}
	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.ProgressPercent = 100
	run.Success, run.Skipped, run.Failed = stats.Success, stats.Skipped, stats.Failed
	run.FinishedAt = &now
	return nil
}

// MarkFailed implements Tracker.
func (m *MemoryTracker) MarkFailed(_ context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, err := m.running(id)
	if err != nil {
		return err
	}
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.Message = message
	run.FinishedAt = &now
	return nil
}

// GetRun implements Reader.
func (m *MemoryTracker) GetRun(_ context.Context, id string) (*database.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, database.NewNotFoundErrorWithID("pipeline run", id)
	}
	cp := *run
	return &cp, nil
}

// ListRuns implements Reader, newest first.
func (m *MemoryTracker) ListRuns(_ context.Context, feature string, limit int) ([]database.PipelineRun, error) {
	if limit <= 0 {
		limit = database.DefaultRunLimit
	}
	if limit > database.MaxRunLimit {
		limit = database.MaxRunLimit
	}

	m.mu.RLock()
	out := make([]database.PipelineRun, 0, len(m.runs))
	for _, r := range m.runs {
		if feature == "" || r.Feature == feature {
			out = append(out, *r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
