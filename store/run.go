package store

import (
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStore owns the run/audit log: SyncRun rows plus the append-only
// SyncLog diagnostics table.
type RunStore struct {
	db        *gorm.DB
	companyID string
}

func NewRunStore(db *gorm.DB, companyID string) *RunStore {
	return &RunStore{db: db, companyID: companyID}
}

func (s *RunStore) CreateRun(triggeredBy string) (*models.SyncRun, error) {
	now := time.Now().UTC()
	run := models.SyncRun{
		RunID:       uuid.NewString(),
		CompanyID:   s.companyID,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   &now,
	}
	if err := s.db.Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// CloseRun records the run's terminal state. Stats is the per-entity
// result map; the row is never mutated afterward.
func (s *RunStore) CloseRun(run *models.SyncRun, status string, stats any, errorCount int) error {
	finishedAt := time.Now().UTC()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	statsJSON, _ := json.Marshal(stats)
	return s.db.Model(run).Updates(map[string]interface{}{
		"status":      status,
		"stats_json":  datatypes.JSON(statsJSON),
		"error_count": errorCount,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
	}).Error
}

func (s *RunStore) ListRuns(limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := s.db.Where("company_id = ?", s.companyID).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (s *RunStore) GetRun(runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.Where("company_id = ? AND run_id = ?", s.companyID, runID).Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *RunStore) ListLogs(runID string, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	err := s.db.Where("company_id = ? AND run_id = ?", s.companyID, runID).
		Order("id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// AppendLog persists one diagnostics row. Logging failures are the
// caller's to ignore; a lost log line never aborts batch work.
func (s *RunStore) AppendLog(runID, entityType, externalID, level, code, message string, payload []byte, retryable bool) error {
	logRow := models.SyncLog{
		RunID:      runID,
		CompanyID:  s.companyID,
		EntityType: entityType,
		ExternalID: externalID,
		Level:      level,
		Code:       code,
		Message:    message,
		Payload:    payload,
		Retryable:  retryable,
	}
	return s.db.Create(&logRow).Error
}
