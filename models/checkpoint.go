package models

import "time"

// EntityCheckpoint is the durable per-entity sync cursor. LastMaxChangeID
// is a string-encoded ALTERID and never decreases; only the checkpoint
// store mutates it, and only after the corresponding batch outcome is
// durably recorded.
type EntityCheckpoint struct {
	ID                 uint      `gorm:"primary_key" json:"id"`
	CompanyID          string    `gorm:"uniqueIndex:idx_checkpoint_entity,priority:1;size:100;not null" json:"company_id"`
	EntityType         string    `gorm:"uniqueIndex:idx_checkpoint_entity,priority:2;size:30;not null" json:"entity_type"`
	SyncMode           string    `gorm:"size:20;not null" json:"sync_mode"`
	LastMaxChangeID    string    `gorm:"size:30;not null;default:'0'" json:"last_max_change_id"`
	FirstSyncCompleted bool      `gorm:"default:false" json:"first_sync_completed"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
