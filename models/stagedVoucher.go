package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StagedVoucher is the locally staged, transformed form of one source
// voucher (sales invoice, receipt, journal or debit note). Upsert key is
// (company, master id). Soft deletion keeps the row and sets Deleted plus
// the originating action, so a cancelled voucher stays auditable.
type StagedVoucher struct {
	ID            uint            `gorm:"primary_key" json:"id"`
	CompanyID     string          `gorm:"uniqueIndex:idx_staged_voucher,priority:1;size:100;not null" json:"company_id"`
	MasterID      string          `gorm:"uniqueIndex:idx_staged_voucher,priority:2;size:64;not null" json:"master_id"`
	GUID          string          `gorm:"size:128" json:"guid"`
	EntityType    string          `gorm:"index;size:30;not null" json:"entity_type"`
	VoucherType   string          `gorm:"size:100" json:"voucher_type"`
	VoucherNumber string          `gorm:"size:100" json:"voucher_number"`
	VoucherDate   time.Time       `json:"voucher_date"`
	PartyName     string          `gorm:"size:255" json:"party_name"`
	PartyMasterID string          `gorm:"size:64" json:"party_master_id"`
	Narration     string          `gorm:"type:text" json:"narration"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	LedgerEntries datatypes.JSON  `json:"ledger_entries"`
	AlterID       string          `gorm:"size:30;not null;default:'0'" json:"alter_id"`
	SyncedToAPI   bool            `gorm:"index;default:false" json:"synced_to_api"`
	Deleted       bool            `gorm:"default:false" json:"deleted"`
	DeletedAction string          `gorm:"size:10" json:"deleted_action"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
