package syncer

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/config"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/sirupsen/logrus"
)

// EntityPipeline orchestrates fetch -> transform -> stage -> push ->
// advance-checkpoint for one entity kind. An entity is either in
// first_sync (monthly backfill with resume) or incremental
// (watermark-bounded fetch); the flip fires exactly once, when a full
// backfill completes with zero incomplete months.
type EntityPipeline struct {
	strategy      EntityStrategy
	fetcher       ReportFetcher
	pusher        BatchPusher
	checkpoints   *store.CheckpointStore
	staging       *store.StagingStore
	runs          *store.RunStore
	balances      *BalanceQueue
	logger        *logrus.Logger
	bookStart     time.Time
	subBatchDelay time.Duration
	now           func() time.Time
	stopRequested func() bool
}

// PipelineConfig wires an EntityPipeline. Balances may be nil for
// entities that never refresh receivables; StopRequested and Now default
// to never / time.Now.
type PipelineConfig struct {
	Strategy      EntityStrategy
	Fetcher       ReportFetcher
	Pusher        BatchPusher
	Checkpoints   *store.CheckpointStore
	Staging       *store.StagingStore
	Runs          *store.RunStore
	Balances      *BalanceQueue
	Logger        *logrus.Logger
	BookStart     time.Time
	SubBatchDelay time.Duration
	Now           func() time.Time
	StopRequested func() bool
}

func NewEntityPipeline(cfg PipelineConfig) *EntityPipeline {
	pipeline := &EntityPipeline{
		strategy:      cfg.Strategy,
		fetcher:       cfg.Fetcher,
		pusher:        cfg.Pusher,
		checkpoints:   cfg.Checkpoints,
		staging:       cfg.Staging,
		runs:          cfg.Runs,
		balances:      cfg.Balances,
		logger:        cfg.Logger,
		bookStart:     cfg.BookStart,
		subBatchDelay: cfg.SubBatchDelay,
		now:           cfg.Now,
		stopRequested: cfg.StopRequested,
	}
	if pipeline.now == nil {
		pipeline.now = time.Now
	}
	if pipeline.stopRequested == nil {
		pipeline.stopRequested = func() bool { return false }
	}
	return pipeline
}

func (p *EntityPipeline) EntityType() string {
	return p.strategy.EntityType()
}

// Run executes one pass of the entity's state machine and reports a
// structured result. It never returns an error for batch-level
// failures; those are isolated, counted and logged.
func (p *EntityPipeline) Run(ctx context.Context, runID string) SyncResult {
	entity := p.strategy.EntityType()
	checkpoint, err := p.checkpoints.GetOrCreate(entity)
	if err != nil {
		return SyncResult{EntityType: entity, Status: models.SyncRunStatusFailed, Message: err.Error()}
	}
	if checkpoint.SyncMode == models.SyncModeFirstSync {
		return p.runFirstSync(ctx, runID)
	}
	return p.runIncremental(ctx, runID, checkpoint)
}

// runFirstSync backfills [bookStart, today] in calendar-month batches.
// Only months whose batches never reached a terminal state are
// (re)processed, which is the resume path after a crash or partial
// failure. A failed month does not abort the run.
func (p *EntityPipeline) runFirstSync(ctx context.Context, runID string) SyncResult {
	entity := p.strategy.EntityType()
	months := utils.MonthRanges(p.bookStart, p.now())

	candidates := make([]string, 0, len(months))
	for _, month := range months {
		candidates = append(candidates, month.MonthKey())
	}
	incomplete, err := p.checkpoints.IncompleteMonths(entity, candidates)
	if err != nil {
		return SyncResult{EntityType: entity, Status: models.SyncRunStatusFailed, Message: err.Error()}
	}
	pending := make(map[string]bool, len(incomplete))
	for _, month := range incomplete {
		pending[month] = true
	}

	result := SyncResult{EntityType: entity}
	stopped := false
	batchFailed := false
	for i := range months {
		month := months[i]
		if !pending[month.MonthKey()] {
			continue
		}
		if p.stopRequested() {
			stopped = true
			break
		}

		batch, err := p.checkpoints.CreateBatch(runID, entity, i+1, month.MonthKey(), models.BatchRange{
			FromDate: month.FromTallyDate(),
			ToDate:   month.ToTallyDate(),
		})
		if err != nil {
			batchFailed = true
			result.Message = err.Error()
			continue
		}
		outcome := p.processBatch(ctx, runID, batch, QueryParams{Range: &month})
		result.SuccessCount += outcome.SuccessCount
		result.FailedCount += outcome.FailedCount
		batchFailed = batchFailed || outcome.Failed
		if outcome.Message != "" {
			result.Message = outcome.Message
		}
	}

	if !stopped {
		remaining, err := p.checkpoints.IncompleteMonths(entity, candidates)
		if err == nil && len(remaining) == 0 {
			if err := p.checkpoints.CompleteFirstSync(entity); err != nil {
				config.LogError(p.logger, "syncer", "runFirstSync", "complete first sync", entity, err)
			} else {
				p.logger.WithFields(logrus.Fields{
					"module": "syncer",
					"entity": entity,
				}).Info("first sync completed; switching to incremental")
			}
		}
	}

	result.Status = entityStatus(result, stopped, batchFailed)
	return result
}

// runIncremental fetches everything above the stored high-water mark.
// The watermark advances to the maximum ALTERID among fetched records
// even on partial push failure: the fetch boundary, not the push
// outcome, determines what must not be re-fetched. Failed pushes stay
// visible through counts and logs.
func (p *EntityPipeline) runIncremental(ctx context.Context, runID string, checkpoint *models.EntityCheckpoint) SyncResult {
	entity := p.strategy.EntityType()

	batch, err := p.checkpoints.CreateBatch(runID, entity, 1, "", models.BatchRange{
		FromID: checkpoint.LastMaxChangeID,
	})
	if err != nil {
		return SyncResult{EntityType: entity, Status: models.SyncRunStatusFailed, Message: err.Error()}
	}

	outcome := p.processBatch(ctx, runID, batch, QueryParams{FromAlterID: checkpoint.LastMaxChangeID})
	result := SyncResult{
		EntityType:   entity,
		SuccessCount: outcome.SuccessCount,
		FailedCount:  outcome.FailedCount,
		Message:      outcome.Message,
	}
	result.Status = entityStatus(result, false, outcome.Failed)
	return result
}

type batchOutcome struct {
	SuccessCount int
	FailedCount  int
	Message      string
	// Failed marks a batch-level failure (fetch or parse), where no
	// per-record counts exist to carry the outcome.
	Failed bool
}

// processBatch runs one unit of work through fetch -> parse -> stage ->
// push, records its outcome on the batch row, and only then advances the
// entity watermark. Failures isolate at the smallest enclosing unit:
// record, sub-batch, then batch.
func (p *EntityPipeline) processBatch(ctx context.Context, runID string, batch *models.SyncBatch, params QueryParams) batchOutcome {
	entity := p.strategy.EntityType()

	payload, err := p.fetcher.Fetch(ctx, p.strategy.BuildQuery(params))
	if err != nil {
		p.failBatch(runID, batch, "fetch_failed", err)
		return batchOutcome{Message: err.Error(), Failed: true}
	}

	records, failures, err := p.strategy.Parse(payload, 0)
	if err != nil {
		p.failBatch(runID, batch, "parse_failed", err)
		return batchOutcome{Message: err.Error(), Failed: true}
	}
	for _, failure := range failures {
		_ = p.runs.AppendLog(runID, entity, failure.ExternalID, "error", failure.Code, failure.Message, failure.Raw, false)
	}

	fetchedCount := len(records) + len(failures)
	if fetchedCount == 0 {
		_ = p.checkpoints.UpdateBatch(batch, store.BatchOutcome{Status: models.BatchStatusCompleted})
		return batchOutcome{}
	}
	_ = p.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       models.BatchStatusFetched,
		FetchedCount: fetchedCount,
	})

	// Stage locally before any push; upsert is idempotent on master id.
	maxAlterID := "0"
	staged := make([]SourceRecord, 0, len(records))
	failedCount := len(failures)
	for _, record := range records {
		if err := p.stageRecord(record); err != nil {
			failedCount++
			_ = p.runs.AppendLog(runID, entity, record.MasterID, "error", "stage_failed", err.Error(), nil, true)
			continue
		}
		maxAlterID = utils.MaxWatermark(maxAlterID, record.AlterID)
		staged = append(staged, record)
	}

	successCount, pushFailed := p.pushStaged(ctx, runID, batch, staged)
	failedCount += pushFailed

	status := models.BatchStatusAPISuccess
	if pushFailed > 0 {
		status = models.BatchStatusAPIFailed
	}
	_ = p.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       status,
		FetchedCount: fetchedCount,
		SuccessCount: successCount,
		FailedCount:  failedCount,
		MaxChangeID:  maxAlterID,
	})

	// Watermark moves only after the batch outcome is durable.
	if err := p.checkpoints.AdvanceWatermark(entity, maxAlterID); err != nil {
		config.LogError(p.logger, "syncer", "processBatch", "advance watermark", entity, err)
	}

	return batchOutcome{SuccessCount: successCount, FailedCount: failedCount}
}

// pushStaged delivers the staged records in sub-batches of at most 100,
// sequentially with a fixed delay between sub-batches. A failed
// sub-batch is counted and skipped; later sub-batches still run.
func (p *EntityPipeline) pushStaged(ctx context.Context, runID string, batch *models.SyncBatch, staged []SourceRecord) (successCount, failedCount int) {
	entity := p.strategy.EntityType()

	for start := 0; start < len(staged); start += subBatchSize {
		if p.stopRequested() {
			failedCount += len(staged) - start
			return successCount, failedCount
		}
		end := start + subBatchSize
		if end > len(staged) {
			end = len(staged)
		}
		chunk := staged[start:end]

		wires := make([]json.RawMessage, 0, len(chunk))
		masterIDs := make([]string, 0, len(chunk))
		for _, record := range chunk {
			wires = append(wires, recordWire(record))
			masterIDs = append(masterIDs, record.MasterID)
		}

		onRetry := func(attempt int) {
			_ = p.checkpoints.UpdateBatch(batch, store.BatchOutcome{
				Status:       models.BatchStatusRetrying,
				FetchedCount: batch.FetchedCount,
			})
		}
		if err := p.pusher.PushBatch(ctx, p.strategy.Endpoint(), wires, onRetry); err != nil {
			failedCount += len(chunk)
			_ = p.runs.AppendLog(runID, entity, "", "error", "push_failed", err.Error(), nil, true)
		} else {
			successCount += len(chunk)
			if err := p.markSynced(chunk, masterIDs); err != nil {
				config.LogError(p.logger, "syncer", "pushStaged", "mark synced", entity, err)
			}
			p.enqueueBalanceRefresh(chunk)
		}

		if p.subBatchDelay > 0 && end < len(staged) {
			time.Sleep(p.subBatchDelay)
		}
	}
	return successCount, failedCount
}

func (p *EntityPipeline) stageRecord(record SourceRecord) error {
	if record.Customer != nil {
		return p.staging.UpsertCustomer(record.Customer)
	}
	if record.Voucher != nil {
		return p.staging.UpsertVoucher(record.Voucher)
	}
	return nil
}

func (p *EntityPipeline) markSynced(chunk []SourceRecord, masterIDs []string) error {
	if len(chunk) == 0 {
		return nil
	}
	if chunk[0].Customer != nil {
		return p.staging.MarkCustomersSynced(masterIDs)
	}
	return p.staging.MarkVouchersSynced(masterIDs)
}

func (p *EntityPipeline) enqueueBalanceRefresh(chunk []SourceRecord) {
	if p.balances == nil {
		return
	}
	for _, record := range chunk {
		p.balances.Enqueue(record.ARLedgers...)
	}
}

func (p *EntityPipeline) failBatch(runID string, batch *models.SyncBatch, code string, err error) {
	_ = p.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       models.BatchStatusFailed,
		ErrorMessage: err.Error(),
	})
	_ = p.runs.AppendLog(runID, p.strategy.EntityType(), "", "error", code, err.Error(), nil, true)
}

func entityStatus(result SyncResult, stopped, batchFailed bool) string {
	switch {
	case stopped:
		return models.SyncRunStatusStopped
	case batchFailed && result.SuccessCount == 0:
		return models.SyncRunStatusFailed
	case batchFailed:
		return models.SyncRunStatusPartial
	case result.FailedCount == 0:
		return models.SyncRunStatusSuccess
	case result.SuccessCount > 0:
		return models.SyncRunStatusPartial
	default:
		return models.SyncRunStatusFailed
	}
}
