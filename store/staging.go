package store

import (
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StagingStore owns the locally staged customers, vouchers and deletion
// records. Upserts are keyed on (company, master id) so re-processing a
// record never creates a duplicate row.
type StagingStore struct {
	db        *gorm.DB
	companyID string
}

func NewStagingStore(db *gorm.DB, companyID string) *StagingStore {
	return &StagingStore{db: db, companyID: companyID}
}

func (s *StagingStore) WithTx(tx *gorm.DB) *StagingStore {
	return &StagingStore{db: tx, companyID: s.companyID}
}

func (s *StagingStore) UpsertCustomer(customer *models.StagedCustomer) error {
	customer.CompanyID = s.companyID
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "master_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"guid", "name", "parent_group", "email", "phone", "address",
			"state", "country", "gstin", "opening_balance", "closing_balance",
			"alter_id", "updated_at",
		}),
	}).Create(customer).Error
}

func (s *StagingStore) UpsertVoucher(voucher *models.StagedVoucher) error {
	voucher.CompanyID = s.companyID
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "master_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"guid", "entity_type", "voucher_type", "voucher_number",
			"voucher_date", "party_name", "party_master_id", "narration",
			"amount", "ledger_entries", "alter_id", "updated_at",
		}),
	}).Create(voucher).Error
}

func (s *StagingStore) ListUnsyncedCustomers(limit int) ([]models.StagedCustomer, error) {
	var customers []models.StagedCustomer
	err := s.db.Where("company_id = ? AND synced_to_api = ?", s.companyID, false).
		Order("id").
		Limit(limit).
		Find(&customers).Error
	return customers, err
}

func (s *StagingStore) ListUnsyncedVouchers(limit int) ([]models.StagedVoucher, error) {
	var vouchers []models.StagedVoucher
	err := s.db.Where("company_id = ? AND synced_to_api = ?", s.companyID, false).
		Order("id").
		Limit(limit).
		Find(&vouchers).Error
	return vouchers, err
}

// MarkCustomersSynced flips exactly the delivered records' flags, after a
// confirmed backend acceptance of the batch containing them.
func (s *StagingStore) MarkCustomersSynced(masterIDs []string) error {
	if len(masterIDs) == 0 {
		return nil
	}
	return s.db.Model(&models.StagedCustomer{}).
		Where("company_id = ? AND master_id IN ?", s.companyID, masterIDs).
		Update("synced_to_api", true).Error
}

func (s *StagingStore) MarkVouchersSynced(masterIDs []string) error {
	if len(masterIDs) == 0 {
		return nil
	}
	return s.db.Model(&models.StagedVoucher{}).
		Where("company_id = ? AND master_id IN ?", s.companyID, masterIDs).
		Update("synced_to_api", true).Error
}

// ApplySoftDelete marks the staged voucher for the source master id as
// deleted without removing the row. Missing rows are a no-op: the
// deletion may predate staging.
func (s *StagingStore) ApplySoftDelete(sourceMasterID string, action string) error {
	return s.db.Model(&models.StagedVoucher{}).
		Where("company_id = ? AND master_id = ?", s.companyID, sourceMasterID).
		Updates(map[string]interface{}{
			"deleted":        true,
			"deleted_action": action,
		}).Error
}

func (s *StagingStore) UpsertDeletion(deletion *models.VoucherDeletion) error {
	deletion.CompanyID = s.companyID
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "guid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_master_id", "voucher_kind", "action", "updated_at",
		}),
	}).Create(deletion).Error
}

func (s *StagingStore) ListUnsyncedDeletions(limit int) ([]models.VoucherDeletion, error) {
	var deletions []models.VoucherDeletion
	err := s.db.Where("company_id = ? AND synced = ?", s.companyID, false).
		Order("id").
		Limit(limit).
		Find(&deletions).Error
	return deletions, err
}

func (s *StagingStore) MarkDeletionsSynced(guids []string) error {
	if len(guids) == 0 {
		return nil
	}
	return s.db.Model(&models.VoucherDeletion{}).
		Where("company_id = ? AND guid IN ?", s.companyID, guids).
		Update("synced", true).Error
}

// GetVoucher fetches one staged voucher by master id.
func (s *StagingStore) GetVoucher(masterID string) (*models.StagedVoucher, error) {
	var voucher models.StagedVoucher
	err := s.db.Where("company_id = ? AND master_id = ?", s.companyID, masterID).Take(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}
