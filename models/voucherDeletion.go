package models

import "time"

// VoucherDeletion records one deletion/cancellation event from the
// deleted-voucher report, keyed by the source voucher's GUID. Synced
// flips true once the backend accepts the batch carrying it.
type VoucherDeletion struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	CompanyID      string    `gorm:"uniqueIndex:idx_voucher_deletion,priority:1;size:100;not null" json:"company_id"`
	GUID           string    `gorm:"uniqueIndex:idx_voucher_deletion,priority:2;size:128;not null" json:"guid"`
	SourceMasterID string    `gorm:"size:64;not null" json:"source_master_id"`
	VoucherKind    string    `gorm:"size:100" json:"voucher_kind"`
	Action         string    `gorm:"size:10;not null" json:"action"`
	Synced         bool      `gorm:"index;default:false" json:"synced"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
