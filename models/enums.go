package models

// Entity kinds synced from the report interface. Customers must be
// processed before voucher kinds within a run.
const (
	EntityTypeCustomer     = "CUSTOMER"
	EntityTypeSalesInvoice = "INVOICE"
	EntityTypeReceipt      = "RECEIPT"
	EntityTypeJournal      = "JOURNAL"
	EntityTypeDebitNote    = "DEBIT_NOTE"
	EntityTypeDeletion     = "DELETION"
)

const (
	SyncModeFirstSync   = "first_sync"
	SyncModeIncremental = "incremental"
)

const (
	BatchStatusPending    = "PENDING"
	BatchStatusFetched    = "FETCHED"
	BatchStatusAPISuccess = "API_SUCCESS"
	BatchStatusAPIFailed  = "API_FAILED"
	BatchStatusCompleted  = "COMPLETED"
	BatchStatusRetrying   = "RETRYING"
	BatchStatusFailed     = "FAILED"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
	SyncRunStatusSkipped = "skipped"
	SyncRunStatusStopped = "stopped"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduled = "scheduled"
)

const (
	DeletionActionDelete = "Delete"
	DeletionActionCancel = "Cancel"
)

// VoucherEntityTypes lists every voucher-bearing entity, in sync order.
var VoucherEntityTypes = []string{
	EntityTypeSalesInvoice,
	EntityTypeReceipt,
	EntityTypeJournal,
	EntityTypeDebitNote,
}

// AllEntityTypes is the orchestrator's full sequence: customers first,
// vouchers after, deletions last.
var AllEntityTypes = append(append([]string{EntityTypeCustomer}, VoucherEntityTypes...), EntityTypeDeletion)
