package models

import (
	"log"

	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) {
	err := db.AutoMigrate(
		&EntityCheckpoint{}, &SyncBatch{},
		&StagedCustomer{}, &StagedVoucher{},
		&VoucherDeletion{},
		&SyncRun{}, &SyncLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
