package models

import "time"

// Pipeline run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PipelineRun records one invocation of an ingestion or analytics feature.
// A run is created before any work starts, its progress is bumped as milestones
// are crossed, and its terminal status is written exactly once.
//
// Key Fields:
//   - ID: uuid assigned at creation
//   - Feature: ingest, orderflow, accumulation, inventory or all
//   - Trigger: scheduled or manual
//   - Status: running, completed or failed
//   - ProgressPercent: 0-100, monotonically increasing
//   - Success/Skipped/Failed: per-item tallies reported on completion
type PipelineRun struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Feature         string     `gorm:"size:32;index;not null" json:"feature"`
	Trigger         string     `gorm:"size:16;not null" json:"trigger"`
	Status          string     `gorm:"size:16;index;not null" json:"status"`
	ProgressPercent int        `gorm:"not null;default:0" json:"progress_percent"`
	Note            string     `gorm:"type:text" json:"note,omitempty"`
	Success         int        `gorm:"default:0" json:"success"`
	Skipped         int        `gorm:"default:0" json:"skipped"`
	Failed          int        `gorm:"default:0" json:"failed"`
	Message         string     `gorm:"type:text" json:"message,omitempty"`
	StartedAt       time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// TableName specifies the table name for PipelineRun
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// ObjectBlob is one object of the Postgres-backed object store.
// Keys are slash separated paths such as series/ohlcv/BBCA.csv; writes are last-write-wins.
type ObjectBlob struct {
	Key         string    `gorm:"primaryKey;type:text" json:"key"`
	Content     []byte    `gorm:"type:bytea;not null" json:"-"`
	ContentType string    `gorm:"size:64" json:"content_type"`
	Size        int       `json:"size"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ObjectBlob
func (ObjectBlob) TableName() string {
	return "object_blobs"
}

// Instrument is a tradable code the scheduled pipeline enumerates.
type Instrument struct {
	Code   string `gorm:"primaryKey;size:10" json:"code"`
	Sector string `gorm:"size:64" json:"sector"`
	Active bool   `gorm:"default:true;index" json:"active"`
}

// TableName specifies the table name for Instrument
func (Instrument) TableName() string {
	return "instruments"
}
