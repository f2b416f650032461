package store_test

import (
	"fmt"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models.MigrateTable(db)
	return db
}

func TestGetOrCreate_DefaultsToFirstSync(t *testing.T) {
	checkpoints := store.NewCheckpointStore(openTestDB(t), "company-1")

	checkpoint, err := checkpoints.GetOrCreate(models.EntityTypeCustomer)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if checkpoint.SyncMode != models.SyncModeFirstSync {
		t.Errorf("sync mode: %q", checkpoint.SyncMode)
	}
	if checkpoint.LastMaxChangeID != "0" {
		t.Errorf("watermark: %q, want 0", checkpoint.LastMaxChangeID)
	}
	if checkpoint.FirstSyncCompleted {
		t.Error("fresh checkpoint must not be completed")
	}

	again, err := checkpoints.GetOrCreate(models.EntityTypeCustomer)
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if again.ID != checkpoint.ID {
		t.Error("second call must return the same row")
	}
}

func TestAdvanceWatermark_Monotonic(t *testing.T) {
	checkpoints := store.NewCheckpointStore(openTestDB(t), "company-1")
	entity := models.EntityTypeSalesInvoice

	if _, err := checkpoints.GetOrCreate(entity); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := checkpoints.AdvanceWatermark(entity, "503"); err != nil {
		t.Fatalf("AdvanceWatermark: %v", err)
	}

	// A lower candidate never regresses the watermark.
	if err := checkpoints.AdvanceWatermark(entity, "500"); err != nil {
		t.Fatalf("AdvanceWatermark lower: %v", err)
	}
	// Neither does an unparsable one.
	if err := checkpoints.AdvanceWatermark(entity, "garbage"); err != nil {
		t.Fatalf("AdvanceWatermark garbage: %v", err)
	}

	checkpoint, err := checkpoints.GetOrCreate(entity)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if checkpoint.LastMaxChangeID != "503" {
		t.Errorf("watermark: %q, want 503", checkpoint.LastMaxChangeID)
	}
}

func TestAdvanceDeletionCursor_NonNumericIDs(t *testing.T) {
	checkpoints := store.NewCheckpointStore(openTestDB(t), "company-1")
	entity := models.EntityTypeDeletion

	if _, err := checkpoints.GetOrCreate(entity); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := checkpoints.AdvanceDeletionCursor(entity, "VCH-0950"); err != nil {
		t.Fatalf("AdvanceDeletionCursor: %v", err)
	}
	// A lesser id never regresses the cursor.
	if err := checkpoints.AdvanceDeletionCursor(entity, "VCH-0900"); err != nil {
		t.Fatalf("AdvanceDeletionCursor lower: %v", err)
	}

	checkpoint, err := checkpoints.GetOrCreate(entity)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if checkpoint.LastMaxChangeID != "VCH-0950" {
		t.Errorf("cursor: %q, want VCH-0950", checkpoint.LastMaxChangeID)
	}
}

func TestCompleteFirstSync_FlipsOnce(t *testing.T) {
	checkpoints := store.NewCheckpointStore(openTestDB(t), "company-1")
	entity := models.EntityTypeReceipt

	if _, err := checkpoints.GetOrCreate(entity); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := checkpoints.CompleteFirstSync(entity); err != nil {
		t.Fatalf("CompleteFirstSync: %v", err)
	}

	checkpoint, _ := checkpoints.GetOrCreate(entity)
	if checkpoint.SyncMode != models.SyncModeIncremental || !checkpoint.FirstSyncCompleted {
		t.Fatalf("checkpoint after flip: %+v", checkpoint)
	}

	// Repeating the call leaves the flipped row untouched.
	if err := checkpoints.CompleteFirstSync(entity); err != nil {
		t.Fatalf("CompleteFirstSync again: %v", err)
	}
	again, _ := checkpoints.GetOrCreate(entity)
	if again.SyncMode != models.SyncModeIncremental {
		t.Errorf("sync mode after second flip: %q", again.SyncMode)
	}
}

func TestIncompleteMonths(t *testing.T) {
	db := openTestDB(t)
	checkpoints := store.NewCheckpointStore(db, "company-1")
	entity := models.EntityTypeJournal
	candidates := []string{"2023-04", "2023-05", "2023-06"}

	// Nothing recorded yet: every candidate is incomplete.
	incomplete, err := checkpoints.IncompleteMonths(entity, candidates)
	if err != nil {
		t.Fatalf("IncompleteMonths: %v", err)
	}
	if len(incomplete) != 3 {
		t.Fatalf("got %v, want all candidates", incomplete)
	}

	april, err := checkpoints.CreateBatch("run-1", entity, 1, "2023-04", models.BatchRange{FromDate: "20230401", ToDate: "20230430"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := checkpoints.UpdateBatch(april, store.BatchOutcome{Status: models.BatchStatusAPISuccess, FetchedCount: 10, SuccessCount: 10}); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}

	may, err := checkpoints.CreateBatch("run-1", entity, 2, "2023-05", models.BatchRange{FromDate: "20230501", ToDate: "20230531"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := checkpoints.UpdateBatch(may, store.BatchOutcome{Status: models.BatchStatusAPIFailed, FetchedCount: 10, FailedCount: 10}); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}

	incomplete, err = checkpoints.IncompleteMonths(entity, candidates)
	if err != nil {
		t.Fatalf("IncompleteMonths: %v", err)
	}
	if len(incomplete) != 2 || incomplete[0] != "2023-05" || incomplete[1] != "2023-06" {
		t.Fatalf("got %v, want [2023-05 2023-06]", incomplete)
	}

	// A month that also reached COMPLETED counts as done.
	empty, err := checkpoints.CreateBatch("run-2", entity, 3, "2023-06", models.BatchRange{FromDate: "20230601", ToDate: "20230615"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := checkpoints.UpdateBatch(empty, store.BatchOutcome{Status: models.BatchStatusCompleted}); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	incomplete, err = checkpoints.IncompleteMonths(entity, candidates)
	if err != nil {
		t.Fatalf("IncompleteMonths: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0] != "2023-05" {
		t.Fatalf("got %v, want [2023-05]", incomplete)
	}
}

func TestListBatches_InCreationOrder(t *testing.T) {
	checkpoints := store.NewCheckpointStore(openTestDB(t), "company-1")
	entity := models.EntityTypeDebitNote

	for i := 1; i <= 3; i++ {
		if _, err := checkpoints.CreateBatch("run-1", entity, i, "", models.BatchRange{FromID: "0"}); err != nil {
			t.Fatalf("CreateBatch %d: %v", i, err)
		}
	}
	batches, err := checkpoints.ListBatches("run-1")
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches", len(batches))
	}
	for i, batch := range batches {
		if batch.BatchNumber != i+1 {
			t.Errorf("batch %d out of order: number %d", i, batch.BatchNumber)
		}
		if batch.Status != models.BatchStatusPending {
			t.Errorf("new batch status: %q", batch.Status)
		}
	}
}
