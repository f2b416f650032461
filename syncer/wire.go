package syncer

import (
	"encoding/json"

	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
)

// Wire shapes accepted by the backend's per-entity endpoints.

type wireCustomer struct {
	MasterID       string `json:"master_id"`
	GUID           string `json:"guid"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	State          string `json:"state,omitempty"`
	Country        string `json:"country,omitempty"`
	GSTIN          string `json:"gstin,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	ClosingBalance string `json:"closing_balance"`
	AlterID        string `json:"alter_id"`
}

type wireVoucher struct {
	MasterID      string          `json:"master_id"`
	GUID          string          `json:"guid"`
	VoucherType   string          `json:"voucher_type"`
	VoucherNumber string          `json:"voucher_number"`
	VoucherDate   string          `json:"voucher_date"`
	PartyName     string          `json:"party_name,omitempty"`
	PartyMasterID string          `json:"party_master_id,omitempty"`
	Narration     string          `json:"narration,omitempty"`
	Amount        string          `json:"amount"`
	LedgerEntries json.RawMessage `json:"ledger_entries,omitempty"`
	AlterID       string          `json:"alter_id"`
}

type wireDeletion struct {
	GUID           string `json:"guid"`
	SourceMasterID string `json:"source_master_id"`
	VoucherKind    string `json:"voucher_kind"`
	Action         string `json:"action"`
}

func customerWire(customer models.StagedCustomer) json.RawMessage {
	b, _ := json.Marshal(wireCustomer{
		MasterID:       customer.MasterID,
		GUID:           customer.GUID,
		Name:           customer.Name,
		Email:          customer.Email,
		Phone:          customer.Phone,
		Address:        customer.Address,
		State:          customer.State,
		Country:        customer.Country,
		GSTIN:          customer.GSTIN,
		OpeningBalance: customer.OpeningBalance.String(),
		ClosingBalance: customer.ClosingBalance.String(),
		AlterID:        customer.AlterID,
	})
	return b
}

func voucherWire(voucher models.StagedVoucher) json.RawMessage {
	b, _ := json.Marshal(wireVoucher{
		MasterID:      voucher.MasterID,
		GUID:          voucher.GUID,
		VoucherType:   voucher.VoucherType,
		VoucherNumber: voucher.VoucherNumber,
		VoucherDate:   voucher.VoucherDate.Format("2006-01-02"),
		PartyName:     voucher.PartyName,
		PartyMasterID: voucher.PartyMasterID,
		Narration:     voucher.Narration,
		Amount:        voucher.Amount.String(),
		LedgerEntries: json.RawMessage(voucher.LedgerEntries),
		AlterID:       voucher.AlterID,
	})
	return b
}

func deletionWire(deletion models.VoucherDeletion) json.RawMessage {
	b, _ := json.Marshal(wireDeletion{
		GUID:           deletion.GUID,
		SourceMasterID: deletion.SourceMasterID,
		VoucherKind:    deletion.VoucherKind,
		Action:         deletion.Action,
	})
	return b
}

func recordWire(record SourceRecord) json.RawMessage {
	if record.Customer != nil {
		return customerWire(*record.Customer)
	}
	if record.Voucher != nil {
		return voucherWire(*record.Voucher)
	}
	return nil
}
