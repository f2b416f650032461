package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncRun aggregates one top-level orchestrated invocation. Closed runs
// are never mutated.
type SyncRun struct {
	ID          uint           `gorm:"primary_key" json:"id"`
	RunID       string         `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	CompanyID   string         `gorm:"index;size:100;not null" json:"company_id"`
	Status      string         `gorm:"size:20;not null" json:"status"`
	TriggeredBy string         `gorm:"size:20" json:"triggered_by"`
	StatsJSON   datatypes.JSON `json:"stats"`
	ErrorCount  int            `json:"error_count"`
	StartedAt   *time.Time     `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at"`
	DurationMs  int64          `json:"duration_ms"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncLog is the append-only diagnostics table. Per-record failures land
// here instead of aborting their enclosing batch.
type SyncLog struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	RunID      string    `gorm:"index;size:36" json:"run_id"`
	CompanyID  string    `gorm:"index;size:100" json:"company_id"`
	EntityType string    `gorm:"size:30" json:"entity_type"`
	ExternalID string    `gorm:"size:128" json:"external_id"`
	Level      string    `gorm:"size:10" json:"level"`
	Code       string    `gorm:"size:64" json:"code"`
	Message    string    `gorm:"type:text" json:"message"`
	Payload    []byte    `gorm:"type:blob" json:"payload"`
	Retryable  bool      `gorm:"default:false" json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
