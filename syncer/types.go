package syncer

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/tally"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
)

// subBatchSize bounds every outbound delivery unit.
const subBatchSize = 100

// resumeWindowSize is the fixed ALTERID window the generalized resume
// engine walks.
const resumeWindowSize = 100

// SyncResult is the structured, user-visible outcome of one entity's
// processing within a run. Failures surface here and in logs, never as a
// thrown fault.
type SyncResult struct {
	EntityType   string `json:"entityType"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

// QueryParams selects one fetch window: either a date range (backfill)
// or an ALTERID lower bound (incremental; exclusive).
type QueryParams struct {
	Range       *utils.DateRange
	FromAlterID string
	ToAlterID   string
}

// SourceRecord is one parsed source record, carrying its staged form.
// Exactly one of Customer/Voucher is set.
type SourceRecord struct {
	MasterID string
	AlterID  string
	Customer *models.StagedCustomer
	Voucher  *models.StagedVoucher
	// ARLedgers holds party ledger master ids tagged as accounts
	// receivable, for the balance-refresh follow-up.
	ARLedgers []string
}

// RecordFailure is one malformed record, counted as failed without
// aborting the surrounding batch.
type RecordFailure struct {
	ExternalID string
	Code       string
	Message    string
	Raw        []byte
}

// EntityStrategy is the small per-entity surface the generic pipeline is
// parameterized by.
type EntityStrategy interface {
	EntityType() string
	BuildQuery(params QueryParams) tally.Query
	Endpoint() string
	Parse(payload []byte, max int) ([]SourceRecord, []RecordFailure, error)
}

// ReportFetcher is the report client's read surface.
type ReportFetcher interface {
	Fetch(ctx context.Context, q tally.Query) ([]byte, error)
}

// BatchPusher is the backend client's delivery surface.
type BatchPusher interface {
	PushBatch(ctx context.Context, endpoint string, records []json.RawMessage, onRetry func(attempt int)) error
}

// BalanceRefresher recomputes one customer ledger's receivable balance.
type BalanceRefresher interface {
	RefreshCustomerBalance(ctx context.Context, ledgerMasterID string) error
}
