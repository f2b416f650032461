package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// BatchRange describes one unit of work: a calendar-month date pair
// during backfill, or an ALTERID window during incremental / generalized
// resume. Exactly one of the pairs is populated.
type BatchRange struct {
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
	FromID   string `json:"from_id,omitempty"`
	ToID     string `json:"to_id,omitempty"`
}

func (r BatchRange) Encode() datatypes.JSON {
	b, _ := json.Marshal(r)
	return datatypes.JSON(b)
}

func DecodeBatchRange(raw datatypes.JSON) BatchRange {
	var r BatchRange
	if len(raw) == 0 {
		return r
	}
	_ = json.Unmarshal(raw, &r)
	return r
}

// SyncBatch records one unit of work and its march through
// fetch -> push. A COMPLETED or API_SUCCESS batch is immutable for audit
// purposes; a resumed attempt of the same range creates a new row.
type SyncBatch struct {
	ID           uint           `gorm:"primary_key" json:"id"`
	RunID        string         `gorm:"index;size:36;not null" json:"run_id"`
	CompanyID    string         `gorm:"index;size:100;not null" json:"company_id"`
	EntityType   string         `gorm:"index:idx_batch_entity_month;size:30;not null" json:"entity_type"`
	BatchNumber  int            `json:"batch_number"`
	MonthKey     string         `gorm:"index:idx_batch_entity_month;size:7" json:"month_key"`
	RangeJSON    datatypes.JSON `json:"range"`
	Status       string         `gorm:"size:20;not null" json:"status"`
	FetchedCount int            `json:"fetched_count"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	MaxChangeID  string         `gorm:"size:30" json:"max_change_id"`
	ErrorMessage string         `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Terminal reports whether the batch reached a state that counts as done
// for resume purposes.
func (b SyncBatch) Terminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusAPISuccess
}
