package syncer

import (
	"context"
	"strconv"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResumeEngine is the entity-agnostic backfill path: it walks fixed-size
// ALTERID windows, streams each window through the batch parser, and
// inside a single transaction upserts every record and advances the
// checkpoint to the window's upper bound. A crash between fetch and
// commit leaves the checkpoint unchanged, so the same window is safely
// re-fetched on restart.
type ResumeEngine struct {
	db          *gorm.DB
	strategy    EntityStrategy
	fetcher     ReportFetcher
	checkpoints *store.CheckpointStore
	staging     *store.StagingStore
	runs        *store.RunStore
	logger      *logrus.Logger
	windowSize  int64
}

func NewResumeEngine(db *gorm.DB, strategy EntityStrategy, fetcher ReportFetcher, checkpoints *store.CheckpointStore, staging *store.StagingStore, runs *store.RunStore, logger *logrus.Logger) *ResumeEngine {
	return &ResumeEngine{
		db:          db,
		strategy:    strategy,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		staging:     staging,
		runs:        runs,
		logger:      logger,
		windowSize:  resumeWindowSize,
	}
}

func (e *ResumeEngine) EntityType() string {
	return e.strategy.EntityType()
}

// Run walks windows from the last committed boundary until the source
// returns an empty window. If a window's processing fails, the cursor is
// advanced by the window size anyway and the walk continues: a
// permanently poisoned window must not livelock the engine. Operators
// see the skip at warn level and in the batch row.
func (e *ResumeEngine) Run(ctx context.Context, runID string) SyncResult {
	entity := e.strategy.EntityType()
	result := SyncResult{EntityType: entity}

	for batchNumber := 1; ; batchNumber++ {
		checkpoint, err := e.checkpoints.GetOrCreate(entity)
		if err != nil {
			result.Status = models.SyncRunStatusFailed
			result.Message = err.Error()
			return result
		}

		fromID := utils.WatermarkValue(checkpoint.LastMaxChangeID)
		upperBound := fromID + e.windowSize
		from := strconv.FormatInt(fromID, 10)
		to := strconv.FormatInt(upperBound, 10)

		batch, err := e.checkpoints.CreateBatch(runID, entity, batchNumber, "", models.BatchRange{FromID: from, ToID: to})
		if err != nil {
			result.Status = models.SyncRunStatusFailed
			result.Message = err.Error()
			return result
		}

		fetched, processed, fatal, err := e.processWindow(ctx, batch, from, to, upperBound)
		if err != nil && fatal {
			// The window was never fetched; retrying the same boundary
			// later is correct, so the cursor stays put.
			result.Status = models.SyncRunStatusFailed
			result.Message = err.Error()
			_ = e.checkpoints.UpdateBatch(batch, store.BatchOutcome{
				Status:       models.BatchStatusFailed,
				ErrorMessage: err.Error(),
			})
			return result
		}
		if err != nil {
			result.FailedCount += fetched
			_ = e.checkpoints.UpdateBatch(batch, store.BatchOutcome{
				Status:       models.BatchStatusFailed,
				FetchedCount: fetched,
				FailedCount:  fetched,
				ErrorMessage: err.Error(),
			})
			_ = e.runs.AppendLog(runID, entity, "", "warn", "window_skipped", err.Error(), nil, false)
			e.logger.WithFields(logrus.Fields{
				"module": "syncer",
				"entity": entity,
				"window": from + ".." + to,
			}).Warn("window processing failed; advancing cursor past it: " + err.Error())

			// Availability over completeness: skip the poisoned window.
			if advErr := e.checkpoints.AdvanceWatermark(entity, to); advErr != nil {
				result.Status = models.SyncRunStatusFailed
				result.Message = advErr.Error()
				return result
			}
			continue
		}

		result.SuccessCount += processed
		if fetched == 0 {
			break
		}
		if int64(fetched) < e.windowSize {
			// Short window: the source has no records beyond what we saw.
			break
		}
	}

	result.Status = entityStatus(result, false, false)
	return result
}

// processWindow fetches and parses one window, then commits the upserts
// and the checkpoint advancement in a single transaction. A fetch or
// parse failure is fatal to the run (the cursor must not move past a
// window never seen); only post-fetch processing failures are skippable.
func (e *ResumeEngine) processWindow(ctx context.Context, batch *models.SyncBatch, from, to string, upperBound int64) (fetched int, processed int, fatal bool, err error) {
	entity := e.strategy.EntityType()

	payload, err := e.fetcher.Fetch(ctx, e.strategy.BuildQuery(QueryParams{FromAlterID: from, ToAlterID: to}))
	if err != nil {
		return 0, 0, true, err
	}
	records, failures, err := e.strategy.Parse(payload, int(e.windowSize))
	if err != nil {
		return 0, 0, true, err
	}
	fetched = len(records) + len(failures)
	if fetched == 0 {
		_ = e.checkpoints.UpdateBatch(batch, store.BatchOutcome{Status: models.BatchStatusCompleted})
		return 0, 0, false, nil
	}

	// A full window commits its upper bound; a short, final window
	// commits only the highest ALTERID actually observed, so ids the
	// source has not assigned yet are never skipped.
	target := strconv.FormatInt(upperBound, 10)
	if int64(fetched) < e.windowSize {
		target = "0"
		for _, record := range records {
			target = utils.MaxWatermark(target, record.AlterID)
		}
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		staging := e.staging.WithTx(tx)
		for _, record := range records {
			if record.Customer != nil {
				if err := staging.UpsertCustomer(record.Customer); err != nil {
					return err
				}
			} else if record.Voucher != nil {
				if err := staging.UpsertVoucher(record.Voucher); err != nil {
					return err
				}
			}
		}
		return e.checkpoints.WithTx(tx).AdvanceWatermark(entity, target)
	})
	if err != nil {
		return fetched, 0, false, err
	}

	_ = e.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       models.BatchStatusCompleted,
		FetchedCount: fetched,
		SuccessCount: len(records),
		FailedCount:  len(failures),
		MaxChangeID:  target,
	})
	return fetched, len(records), false, nil
}
