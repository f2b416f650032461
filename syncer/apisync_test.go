package syncer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/syncer"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type apiSyncEnv struct {
	db      *gorm.DB
	staging *store.StagingStore
	runs    *store.RunStore
	pusher  *fakePusher
	service *syncer.APISyncService
}

func newAPISyncEnv(t *testing.T) *apiSyncEnv {
	t.Helper()
	db := openTestDB(t)
	env := &apiSyncEnv{
		db:      db,
		staging: store.NewStagingStore(db, "company-1"),
		runs:    store.NewRunStore(db, "company-1"),
		pusher:  &fakePusher{},
	}
	checkpoints := store.NewCheckpointStore(db, "company-1")
	env.service = syncer.NewAPISyncService(env.pusher, checkpoints, env.staging, env.runs, testLogger(), 0)
	return env
}

func (e *apiSyncEnv) stageCustomer(t *testing.T, masterID string) {
	t.Helper()
	if err := e.staging.UpsertCustomer(&models.StagedCustomer{MasterID: masterID, Name: "C" + masterID}); err != nil {
		t.Fatalf("UpsertCustomer: %v", err)
	}
}

func (e *apiSyncEnv) stageVoucher(t *testing.T, masterID, entityType string) {
	t.Helper()
	voucher := &models.StagedVoucher{
		MasterID:    masterID,
		EntityType:  entityType,
		VoucherDate: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromInt(100),
	}
	if err := e.staging.UpsertVoucher(voucher); err != nil {
		t.Fatalf("UpsertVoucher: %v", err)
	}
}

func TestDrain_DeliversAndMarksStagedRecords(t *testing.T) {
	env := newAPISyncEnv(t)
	env.stageCustomer(t, "1")
	env.stageCustomer(t, "2")
	env.stageVoucher(t, "10", models.EntityTypeSalesInvoice)
	env.stageVoucher(t, "11", models.EntityTypeReceipt)

	result := env.service.Drain(context.Background(), "run-1")
	if result.Status != models.SyncRunStatusSuccess {
		t.Fatalf("result: %+v", result)
	}
	if result.SuccessCount != 4 {
		t.Errorf("success count: %d", result.SuccessCount)
	}

	endpoints := map[string]int{}
	for _, call := range env.pusher.calls {
		endpoints[call.endpoint] += call.records
	}
	if endpoints[backend.EndpointCustomers] != 2 {
		t.Errorf("customer pushes: %v", endpoints)
	}
	if endpoints[backend.EndpointInvoices] != 1 || endpoints[backend.EndpointReceipts] != 1 {
		t.Errorf("voucher pushes by kind: %v", endpoints)
	}

	customers, _ := env.staging.ListUnsyncedCustomers(10)
	vouchers, _ := env.staging.ListUnsyncedVouchers(10)
	if len(customers) != 0 || len(vouchers) != 0 {
		t.Errorf("unsynced remain: %d customers, %d vouchers", len(customers), len(vouchers))
	}
}

func TestDrain_CapIsSharedAcrossRecordKinds(t *testing.T) {
	// One pass moves at most 100 records in total. With 100 customers
	// staged, the voucher waits for the next pass.
	env := newAPISyncEnv(t)
	for i := 0; i < 100; i++ {
		env.stageCustomer(t, fmt.Sprintf("c-%03d", i))
	}
	env.stageVoucher(t, "10", models.EntityTypeSalesInvoice)

	result := env.service.Drain(context.Background(), "run-1")
	if result.SuccessCount != 100 {
		t.Fatalf("first pass: %+v", result)
	}
	vouchers, err := env.staging.ListUnsyncedVouchers(10)
	if err != nil {
		t.Fatalf("ListUnsyncedVouchers: %v", err)
	}
	if len(vouchers) != 1 {
		t.Fatalf("voucher drained past the cap: %d unsynced", len(vouchers))
	}

	result = env.service.Drain(context.Background(), "run-1")
	if result.SuccessCount != 1 {
		t.Fatalf("second pass: %+v", result)
	}
	vouchers, _ = env.staging.ListUnsyncedVouchers(10)
	if len(vouchers) != 0 {
		t.Errorf("unsynced vouchers after second pass: %d", len(vouchers))
	}
}

func TestDrain_FailedSubBatchKeepsFlagsUnset(t *testing.T) {
	env := newAPISyncEnv(t)
	env.stageCustomer(t, "1")
	env.stageCustomer(t, "2")
	env.pusher.failFn = func(call int, endpoint string) error {
		return fmt.Errorf("backend returned 500")
	}

	result := env.service.Drain(context.Background(), "run-1")
	if result.Status != models.SyncRunStatusFailed {
		t.Fatalf("result: %+v", result)
	}
	if result.FailedCount != 2 {
		t.Errorf("failed count: %d", result.FailedCount)
	}

	// All-or-nothing: no flag flips on a failed sub-batch.
	customers, err := env.staging.ListUnsyncedCustomers(10)
	if err != nil {
		t.Fatalf("ListUnsyncedCustomers: %v", err)
	}
	if len(customers) != 2 {
		t.Errorf("unsynced customers: %d, want 2", len(customers))
	}
}

func TestDrain_NothingStagedIsANoOp(t *testing.T) {
	env := newAPISyncEnv(t)

	result := env.service.Drain(context.Background(), "run-1")
	if result.Status != models.SyncRunStatusSuccess || result.SuccessCount != 0 {
		t.Fatalf("result: %+v", result)
	}
	if len(env.pusher.calls) != 0 {
		t.Errorf("push calls: %+v", env.pusher.calls)
	}
}
