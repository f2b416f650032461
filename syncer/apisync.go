package syncer

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"bitbucket.org/mmdatafocus/tally_sync_agent/config"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"github.com/sirupsen/logrus"
)

// APISyncService drains locally staged, not-yet-delivered records and
// pushes them to the backend in bounded sub-batches. It is the recovery
// path for records that were staged but whose original push failed or
// never happened. Acceptance is all-or-nothing per sub-batch; exactly
// the delivered records' flags flip to synced.
type APISyncService struct {
	pusher        BatchPusher
	checkpoints   *store.CheckpointStore
	staging       *store.StagingStore
	runs          *store.RunStore
	logger        *logrus.Logger
	subBatchDelay time.Duration
}

func NewAPISyncService(pusher BatchPusher, checkpoints *store.CheckpointStore, staging *store.StagingStore, runs *store.RunStore, logger *logrus.Logger, subBatchDelay time.Duration) *APISyncService {
	return &APISyncService{
		pusher:        pusher,
		checkpoints:   checkpoints,
		staging:       staging,
		runs:          runs,
		logger:        logger,
		subBatchDelay: subBatchDelay,
	}
}

func (s *APISyncService) EntityType() string {
	return "API_SYNC"
}

// Run lets the service join an orchestrated run after the entity
// pipelines, sweeping up anything they left staged but undelivered.
func (s *APISyncService) Run(ctx context.Context, runID string) SyncResult {
	return s.Drain(ctx, runID)
}

// Drain pushes up to 100 unsynced staged records in total, customers
// first and vouchers with whatever remains of the cap. Each call is one
// bounded pass; callers loop as long as progress is reported.
func (s *APISyncService) Drain(ctx context.Context, runID string) SyncResult {
	result := SyncResult{EntityType: "API_SYNC"}

	success, failed, drained := s.drainCustomers(ctx, runID, subBatchSize)
	result.SuccessCount += success
	result.FailedCount += failed

	if remaining := subBatchSize - drained; remaining > 0 {
		success, failed = s.drainVouchers(ctx, runID, remaining)
		result.SuccessCount += success
		result.FailedCount += failed
	}

	result.Status = entityStatus(result, false, false)
	return result
}

func (s *APISyncService) drainCustomers(ctx context.Context, runID string, limit int) (successCount, failedCount, drained int) {
	customers, err := s.staging.ListUnsyncedCustomers(limit)
	if err != nil {
		config.LogError(s.logger, "syncer", "drainCustomers", "list unsynced", nil, err)
		return 0, 0, 0
	}
	if len(customers) == 0 {
		return 0, 0, 0
	}

	wires := make([]json.RawMessage, 0, len(customers))
	masterIDs := make([]string, 0, len(customers))
	for _, customer := range customers {
		wires = append(wires, customerWire(customer))
		masterIDs = append(masterIDs, customer.MasterID)
	}

	delivered, err := s.pushSubBatch(ctx, runID, models.EntityTypeCustomer, backend.EndpointCustomers, wires)
	if err != nil {
		return 0, len(customers), len(customers)
	}
	if delivered {
		if err := s.staging.MarkCustomersSynced(masterIDs); err != nil {
			config.LogError(s.logger, "syncer", "drainCustomers", "mark synced", nil, err)
		}
	}
	return len(customers), 0, len(customers)
}

func (s *APISyncService) drainVouchers(ctx context.Context, runID string, limit int) (successCount, failedCount int) {
	vouchers, err := s.staging.ListUnsyncedVouchers(limit)
	if err != nil {
		config.LogError(s.logger, "syncer", "drainVouchers", "list unsynced", nil, err)
		return 0, 0
	}
	if len(vouchers) == 0 {
		return 0, 0
	}

	// Vouchers drain per entity kind: each kind has its own endpoint.
	byEntity := map[string][]models.StagedVoucher{}
	for _, voucher := range vouchers {
		byEntity[voucher.EntityType] = append(byEntity[voucher.EntityType], voucher)
	}

	first := true
	for entityType, group := range byEntity {
		if !first && s.subBatchDelay > 0 {
			time.Sleep(s.subBatchDelay)
		}
		first = false

		wires := make([]json.RawMessage, 0, len(group))
		masterIDs := make([]string, 0, len(group))
		for _, voucher := range group {
			wires = append(wires, voucherWire(voucher))
			masterIDs = append(masterIDs, voucher.MasterID)
		}

		delivered, err := s.pushSubBatch(ctx, runID, entityType, voucherEndpoint(entityType), wires)
		if err != nil {
			failedCount += len(group)
			continue
		}
		if delivered {
			if err := s.staging.MarkVouchersSynced(masterIDs); err != nil {
				config.LogError(s.logger, "syncer", "drainVouchers", "mark synced", entityType, err)
			}
		}
		successCount += len(group)
	}
	return successCount, failedCount
}

// pushSubBatch delivers one sub-batch with its own batch row marching
// PENDING -> RETRYING -> API_SUCCESS or FAILED.
func (s *APISyncService) pushSubBatch(ctx context.Context, runID, entityType, endpoint string, wires []json.RawMessage) (bool, error) {
	batch, err := s.checkpoints.CreateBatch(runID, entityType, 0, "", models.BatchRange{})
	if err != nil {
		return false, err
	}

	onRetry := func(attempt int) {
		_ = s.checkpoints.UpdateBatch(batch, store.BatchOutcome{
			Status:       models.BatchStatusRetrying,
			FetchedCount: len(wires),
		})
	}
	if err := s.pusher.PushBatch(ctx, endpoint, wires, onRetry); err != nil {
		_ = s.checkpoints.UpdateBatch(batch, store.BatchOutcome{
			Status:       models.BatchStatusFailed,
			FetchedCount: len(wires),
			FailedCount:  len(wires),
			ErrorMessage: err.Error(),
		})
		_ = s.runs.AppendLog(runID, entityType, "", "error", "push_failed", err.Error(), nil, true)
		return false, err
	}

	_ = s.checkpoints.UpdateBatch(batch, store.BatchOutcome{
		Status:       models.BatchStatusAPISuccess,
		FetchedCount: len(wires),
		SuccessCount: len(wires),
	})
	return true, nil
}

func voucherEndpoint(entityType string) string {
	switch entityType {
	case models.EntityTypeSalesInvoice:
		return backend.EndpointInvoices
	case models.EntityTypeReceipt:
		return backend.EndpointReceipts
	case models.EntityTypeJournal:
		return backend.EndpointJournals
	case models.EntityTypeDebitNote:
		return backend.EndpointDebitNotes
	default:
		return backend.EndpointInvoices
	}
}
