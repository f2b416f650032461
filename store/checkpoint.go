package store

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"gorm.io/gorm"
)

// CheckpointStore is the exclusive owner of EntityCheckpoint and
// SyncBatch rows. Pipelines request mutations through it and never touch
// the tables directly, keeping checkpoint advancement atomic with batch
// completion.
type CheckpointStore struct {
	db        *gorm.DB
	companyID string
}

func NewCheckpointStore(db *gorm.DB, companyID string) *CheckpointStore {
	return &CheckpointStore{db: db, companyID: companyID}
}

// WithTx returns a store bound to the given transaction.
func (s *CheckpointStore) WithTx(tx *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: tx, companyID: s.companyID}
}

// GetOrCreate returns the entity's checkpoint, creating it in first_sync
// mode with a zero watermark on first reference.
func (s *CheckpointStore) GetOrCreate(entityType string) (*models.EntityCheckpoint, error) {
	var checkpoint models.EntityCheckpoint
	err := s.db.Where("company_id = ? AND entity_type = ?", s.companyID, entityType).Take(&checkpoint).Error
	if err == nil {
		return &checkpoint, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	checkpoint = models.EntityCheckpoint{
		CompanyID:       s.companyID,
		EntityType:      entityType,
		SyncMode:        models.SyncModeFirstSync,
		LastMaxChangeID: "0",
	}
	if err := s.db.Create(&checkpoint).Error; err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// AdvanceWatermark raises the entity's high-water mark to candidate if it
// is numerically greater. A lower or equal candidate is a no-op, so the
// watermark never decreases.
func (s *CheckpointStore) AdvanceWatermark(entityType string, candidate string) error {
	checkpoint, err := s.GetOrCreate(entityType)
	if err != nil {
		return err
	}
	if !utils.WatermarkLess(checkpoint.LastMaxChangeID, candidate) {
		return nil
	}
	return s.db.Model(&models.EntityCheckpoint{}).
		Where("id = ?", checkpoint.ID).
		Update("last_max_change_id", utils.MaxWatermark(checkpoint.LastMaxChangeID, candidate)).Error
}

// AdvanceDeletionCursor is AdvanceWatermark for the deletion entity,
// whose cursor is the maximum source master id rather than an ALTERID
// and is not guaranteed to be numeric.
func (s *CheckpointStore) AdvanceDeletionCursor(entityType string, candidate string) error {
	checkpoint, err := s.GetOrCreate(entityType)
	if err != nil {
		return err
	}
	if !utils.SourceIDLess(checkpoint.LastMaxChangeID, candidate) {
		return nil
	}
	return s.db.Model(&models.EntityCheckpoint{}).
		Where("id = ?", checkpoint.ID).
		Update("last_max_change_id", utils.MaxSourceID(checkpoint.LastMaxChangeID, candidate)).Error
}

// CompleteFirstSync flips the entity to incremental mode. The transition
// fires at most once; a checkpoint already flipped is left untouched.
func (s *CheckpointStore) CompleteFirstSync(entityType string) error {
	return s.db.Model(&models.EntityCheckpoint{}).
		Where("company_id = ? AND entity_type = ? AND first_sync_completed = ?", s.companyID, entityType, false).
		Updates(map[string]interface{}{
			"sync_mode":            models.SyncModeIncremental,
			"first_sync_completed": true,
		}).Error
}

// CreateBatch opens a new unit of work in PENDING state.
func (s *CheckpointStore) CreateBatch(runID, entityType string, batchNumber int, monthKey string, rng models.BatchRange) (*models.SyncBatch, error) {
	batch := models.SyncBatch{
		RunID:       runID,
		CompanyID:   s.companyID,
		EntityType:  entityType,
		BatchNumber: batchNumber,
		MonthKey:    monthKey,
		RangeJSON:   rng.Encode(),
		Status:      models.BatchStatusPending,
	}
	if err := s.db.Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// BatchOutcome carries a batch's progress update.
type BatchOutcome struct {
	Status       string
	FetchedCount int
	SuccessCount int
	FailedCount  int
	MaxChangeID  string
	ErrorMessage string
}

func (s *CheckpointStore) UpdateBatch(batch *models.SyncBatch, outcome BatchOutcome) error {
	updates := map[string]interface{}{
		"status":        outcome.Status,
		"fetched_count": outcome.FetchedCount,
		"success_count": outcome.SuccessCount,
		"failed_count":  outcome.FailedCount,
		"updated_at":    time.Now().UTC(),
	}
	if outcome.MaxChangeID != "" {
		updates["max_change_id"] = outcome.MaxChangeID
	}
	if outcome.ErrorMessage != "" {
		updates["error_message"] = outcome.ErrorMessage
	}
	if err := s.db.Model(batch).Updates(updates).Error; err != nil {
		return err
	}
	batch.Status = outcome.Status
	return nil
}

// IncompleteMonths filters the candidate month keys down to those with no
// batch that ever reached COMPLETED or API_SUCCESS. This is the resume
// set after a crash or partial failure; a fresh entity returns every
// candidate.
func (s *CheckpointStore) IncompleteMonths(entityType string, candidates []string) ([]string, error) {
	var doneMonths []string
	err := s.db.Model(&models.SyncBatch{}).
		Where("company_id = ? AND entity_type = ? AND status IN ?",
			s.companyID, entityType, []string{models.BatchStatusCompleted, models.BatchStatusAPISuccess}).
		Distinct().
		Pluck("month_key", &doneMonths).Error
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(doneMonths))
	for _, month := range doneMonths {
		done[month] = true
	}

	var incomplete []string
	for _, month := range candidates {
		if !done[month] {
			incomplete = append(incomplete, month)
		}
	}
	return incomplete, nil
}

// ListBatches returns a run's batches in creation order.
func (s *CheckpointStore) ListBatches(runID string) ([]models.SyncBatch, error) {
	var batches []models.SyncBatch
	err := s.db.Where("company_id = ? AND run_id = ?", s.companyID, runID).
		Order("id").
		Find(&batches).Error
	return batches, err
}
