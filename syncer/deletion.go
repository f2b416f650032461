package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"bitbucket.org/mmdatafocus/tally_sync_agent/config"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/tally"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/sirupsen/logrus"
)

// DeletionReconciler propagates deleted and cancelled source vouchers:
// it soft-deletes the staged copy locally and pushes deletion markers to
// the backend. The deleted-voucher report exposes no ALTERID, so the
// incremental cursor is the maximum source master id observed instead.
type DeletionReconciler struct {
	company       string
	fetcher       ReportFetcher
	pusher        BatchPusher
	checkpoints   *store.CheckpointStore
	staging       *store.StagingStore
	runs          *store.RunStore
	logger        *logrus.Logger
	bookStart     time.Time
	subBatchDelay time.Duration
	now           func() time.Time
}

func NewDeletionReconciler(company string, fetcher ReportFetcher, pusher BatchPusher, checkpoints *store.CheckpointStore, staging *store.StagingStore, runs *store.RunStore, logger *logrus.Logger, bookStart time.Time, subBatchDelay time.Duration) *DeletionReconciler {
	return &DeletionReconciler{
		company:       company,
		fetcher:       fetcher,
		pusher:        pusher,
		checkpoints:   checkpoints,
		staging:       staging,
		runs:          runs,
		logger:        logger,
		bookStart:     bookStart,
		subBatchDelay: subBatchDelay,
		now:           time.Now,
	}
}

func (r *DeletionReconciler) EntityType() string {
	return models.EntityTypeDeletion
}

// Run performs one reconciliation pass: fetch deletion events, stage and
// soft-delete locally, then push undelivered deletion records.
func (r *DeletionReconciler) Run(ctx context.Context, runID string) SyncResult {
	entity := models.EntityTypeDeletion
	checkpoint, err := r.checkpoints.GetOrCreate(entity)
	if err != nil {
		return SyncResult{EntityType: entity, Status: models.SyncRunStatusFailed, Message: err.Error()}
	}

	query := tally.Query{Report: tally.ReportDeletedVouchers, Company: r.company}
	batchRange := models.BatchRange{}
	if checkpoint.SyncMode == models.SyncModeFirstSync {
		query.FromDate = r.bookStart.Format(utils.TallyDateLayout)
		query.ToDate = r.now().Format(utils.TallyDateLayout)
		batchRange.FromDate = query.FromDate
		batchRange.ToDate = query.ToDate
	} else {
		query.FromAlterID = checkpoint.LastMaxChangeID
		batchRange.FromID = checkpoint.LastMaxChangeID
	}

	batch, err := r.checkpoints.CreateBatch(runID, entity, 1, "", batchRange)
	if err != nil {
		return SyncResult{EntityType: entity, Status: models.SyncRunStatusFailed, Message: err.Error()}
	}

	payload, err := r.fetcher.Fetch(ctx, query)
	if err != nil {
		return r.failRun(runID, batch, "fetch_failed", err)
	}
	events, err := tally.ParseDeletedVouchers(bytes.NewReader(payload), 0)
	if err != nil {
		return r.failRun(runID, batch, "parse_failed", err)
	}

	result := SyncResult{EntityType: entity}
	maxMasterID := "0"
	for _, event := range events {
		guid := strings.TrimSpace(event.GUID)
		masterID := strings.TrimSpace(event.MasterID)
		if guid == "" || masterID == "" {
			result.FailedCount++
			_ = r.runs.AppendLog(runID, entity, guid, "error", "missing_id", "deletion event missing guid or master id", nil, false)
			continue
		}

		deletion := models.VoucherDeletion{
			GUID:           guid,
			SourceMasterID: masterID,
			VoucherKind:    strings.TrimSpace(event.VoucherType),
			Action:         normalizeAction(event.Action),
		}
		if err := r.staging.UpsertDeletion(&deletion); err != nil {
			result.FailedCount++
			_ = r.runs.AppendLog(runID, entity, guid, "error", "stage_failed", err.Error(), nil, true)
			continue
		}
		if err := r.staging.ApplySoftDelete(masterID, deletion.Action); err != nil {
			config.LogError(r.logger, "syncer", "Run", "apply soft delete", masterID, err)
		}
		maxMasterID = utils.MaxSourceID(maxMasterID, masterID)
	}

	success, failed := r.pushDeletions(ctx, runID)
	result.SuccessCount += success
	result.FailedCount += failed

	status := models.BatchStatusAPISuccess
	if failed > 0 {
		status = models.BatchStatusAPIFailed
	}
	if len(events) == 0 {
		status = models.BatchStatusCompleted
	}
	_ = r.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       status,
		FetchedCount: len(events),
		SuccessCount: success,
		FailedCount:  result.FailedCount,
		MaxChangeID:  maxMasterID,
	})

	if err := r.checkpoints.AdvanceDeletionCursor(entity, maxMasterID); err != nil {
		config.LogError(r.logger, "syncer", "Run", "advance watermark", entity, err)
	}
	if checkpoint.SyncMode == models.SyncModeFirstSync {
		if err := r.checkpoints.CompleteFirstSync(entity); err != nil {
			config.LogError(r.logger, "syncer", "Run", "complete first sync", entity, err)
		}
	}

	result.Status = entityStatus(result, false, false)
	return result
}

// pushDeletions drains undelivered deletion records in bounded batches.
func (r *DeletionReconciler) pushDeletions(ctx context.Context, runID string) (successCount, failedCount int) {
	for {
		deletions, err := r.staging.ListUnsyncedDeletions(subBatchSize)
		if err != nil {
			config.LogError(r.logger, "syncer", "pushDeletions", "list unsynced", nil, err)
			return successCount, failedCount
		}
		if len(deletions) == 0 {
			return successCount, failedCount
		}

		wires := make([]json.RawMessage, 0, len(deletions))
		guids := make([]string, 0, len(deletions))
		for _, deletion := range deletions {
			wires = append(wires, deletionWire(deletion))
			guids = append(guids, deletion.GUID)
		}

		if err := r.pusher.PushBatch(ctx, backend.EndpointDeletions, wires, nil); err != nil {
			failedCount += len(deletions)
			_ = r.runs.AppendLog(runID, models.EntityTypeDeletion, "", "error", "push_failed", err.Error(), nil, true)
			// The same records would be re-listed immediately; let the
			// next run retry them instead of spinning here.
			return successCount, failedCount
		}
		if err := r.staging.MarkDeletionsSynced(guids); err != nil {
			config.LogError(r.logger, "syncer", "pushDeletions", "mark synced", nil, err)
			return successCount, failedCount
		}
		successCount += len(deletions)

		if len(deletions) < subBatchSize {
			return successCount, failedCount
		}
		if r.subBatchDelay > 0 {
			time.Sleep(r.subBatchDelay)
		}
	}
}

func (r *DeletionReconciler) failRun(runID string, batch *models.SyncBatch, code string, err error) SyncResult {
	_ = r.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       models.BatchStatusFailed,
		ErrorMessage: err.Error(),
	})
	_ = r.runs.AppendLog(runID, models.EntityTypeDeletion, "", "error", code, err.Error(), nil, true)
	return SyncResult{EntityType: models.EntityTypeDeletion, Status: models.SyncRunStatusFailed, Message: err.Error()}
}

func normalizeAction(action string) string {
	if strings.EqualFold(strings.TrimSpace(action), "cancel") {
		return models.DeletionActionCancel
	}
	return models.DeletionActionDelete
}
