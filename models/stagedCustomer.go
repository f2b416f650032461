package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StagedCustomer is the locally staged, transformed form of one source
// ledger under the sundry-debtors group. At most one row exists per
// source master id (upsert on MasterID); SyncedToAPI flips true only
// after the backend confirms the batch containing it.
type StagedCustomer struct {
	ID             uint            `gorm:"primary_key" json:"id"`
	CompanyID      string          `gorm:"uniqueIndex:idx_staged_customer,priority:1;size:100;not null" json:"company_id"`
	MasterID       string          `gorm:"uniqueIndex:idx_staged_customer,priority:2;size:64;not null" json:"master_id"`
	GUID           string          `gorm:"size:128" json:"guid"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	ParentGroup    string          `gorm:"size:255" json:"parent_group"`
	Email          string          `gorm:"size:255" json:"email"`
	Phone          string          `gorm:"size:50" json:"phone"`
	Address        string          `gorm:"type:text" json:"address"`
	State          string          `gorm:"size:100" json:"state"`
	Country        string          `gorm:"size:100" json:"country"`
	GSTIN          string          `gorm:"size:20" json:"gstin"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"opening_balance"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"closing_balance"`
	AlterID        string          `gorm:"size:30;not null;default:'0'" json:"alter_id"`
	SyncedToAPI    bool            `gorm:"index;default:false" json:"synced_to_api"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
