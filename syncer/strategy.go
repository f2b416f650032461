package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/tally"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// customerStrategy syncs sundry-debtor ledgers.
type customerStrategy struct {
	company string
}

// voucherStrategy covers every voucher-bearing entity; the per-entity
// differences reduce to report name, endpoint and whether successful
// pushes should refresh party receivable balances.
type voucherStrategy struct {
	company         string
	entityType      string
	report          string
	endpoint        string
	refreshBalances bool
}

// NewStrategies returns the per-entity strategies in orchestration
// order: customers first, since vouchers reference customer ledgers.
func NewStrategies(company string) []EntityStrategy {
	return []EntityStrategy{
		&customerStrategy{company: company},
		&voucherStrategy{company: company, entityType: models.EntityTypeSalesInvoice, report: tally.ReportSalesInvoices, endpoint: backend.EndpointInvoices, refreshBalances: true},
		&voucherStrategy{company: company, entityType: models.EntityTypeReceipt, report: tally.ReportReceipts, endpoint: backend.EndpointReceipts, refreshBalances: true},
		&voucherStrategy{company: company, entityType: models.EntityTypeJournal, report: tally.ReportJournals, endpoint: backend.EndpointJournals},
		&voucherStrategy{company: company, entityType: models.EntityTypeDebitNote, report: tally.ReportDebitNotes, endpoint: backend.EndpointDebitNotes},
	}
}

func (s *customerStrategy) EntityType() string { return models.EntityTypeCustomer }
func (s *customerStrategy) Endpoint() string   { return backend.EndpointCustomers }

func (s *customerStrategy) BuildQuery(params QueryParams) tally.Query {
	return buildQuery(tally.ReportCustomers, s.company, params)
}

func (s *customerStrategy) Parse(payload []byte, max int) ([]SourceRecord, []RecordFailure, error) {
	ledgers, err := tally.ParseLedgers(bytes.NewReader(payload), max)
	if err != nil {
		return nil, nil, err
	}

	var records []SourceRecord
	var failures []RecordFailure
	for _, ledger := range ledgers {
		masterID := strings.TrimSpace(ledger.MasterID)
		if masterID == "" {
			failures = append(failures, RecordFailure{
				Code:    "missing_id",
				Message: "ledger master id missing",
				Raw:     rawOf(ledger),
			})
			continue
		}

		opening, err := parseAmount(ledger.OpeningBalance)
		if err != nil {
			failures = append(failures, RecordFailure{ExternalID: masterID, Code: "bad_amount", Message: err.Error(), Raw: rawOf(ledger)})
			continue
		}
		closing, err := parseAmount(ledger.ClosingBalance)
		if err != nil {
			failures = append(failures, RecordFailure{ExternalID: masterID, Code: "bad_amount", Message: err.Error(), Raw: rawOf(ledger)})
			continue
		}

		name := strings.TrimSpace(ledger.Name)
		if name == "" {
			name = "Ledger " + masterID
		}

		records = append(records, SourceRecord{
			MasterID: masterID,
			AlterID:  ledger.AlterID,
			Customer: &models.StagedCustomer{
				MasterID:       masterID,
				GUID:           strings.TrimSpace(ledger.GUID),
				Name:           name,
				ParentGroup:    strings.TrimSpace(ledger.Parent),
				Email:          strings.TrimSpace(ledger.Email),
				Phone:          strings.TrimSpace(ledger.Phone),
				Address:        strings.TrimSpace(ledger.Address),
				State:          strings.TrimSpace(ledger.StateName),
				Country:        strings.TrimSpace(ledger.CountryName),
				GSTIN:          strings.TrimSpace(ledger.GSTIN),
				OpeningBalance: opening,
				ClosingBalance: closing,
				AlterID:        ledger.AlterID,
			},
		})
	}
	return records, failures, nil
}

func (s *voucherStrategy) EntityType() string { return s.entityType }
func (s *voucherStrategy) Endpoint() string   { return s.endpoint }

func (s *voucherStrategy) BuildQuery(params QueryParams) tally.Query {
	return buildQuery(s.report, s.company, params)
}

func (s *voucherStrategy) Parse(payload []byte, max int) ([]SourceRecord, []RecordFailure, error) {
	vouchers, err := tally.ParseVouchers(bytes.NewReader(payload), max)
	if err != nil {
		return nil, nil, err
	}

	var records []SourceRecord
	var failures []RecordFailure
	for _, voucher := range vouchers {
		masterID := strings.TrimSpace(voucher.MasterID)
		if masterID == "" {
			failures = append(failures, RecordFailure{
				Code:    "missing_id",
				Message: "voucher master id missing",
				Raw:     rawOf(voucher),
			})
			continue
		}

		voucherDate, err := utils.ParseTallyDate(voucher.Date)
		if err != nil {
			failures = append(failures, RecordFailure{ExternalID: masterID, Code: "bad_date", Message: fmt.Sprintf("voucher date %q: %v", voucher.Date, err), Raw: rawOf(voucher)})
			continue
		}
		amount, err := parseAmount(voucher.Amount)
		if err != nil {
			failures = append(failures, RecordFailure{ExternalID: masterID, Code: "bad_amount", Message: err.Error(), Raw: rawOf(voucher)})
			continue
		}

		entriesJSON, _ := json.Marshal(voucher.LedgerEntries)

		record := SourceRecord{
			MasterID: masterID,
			AlterID:  voucher.AlterID,
			Voucher: &models.StagedVoucher{
				MasterID:      masterID,
				GUID:          strings.TrimSpace(voucher.GUID),
				EntityType:    s.entityType,
				VoucherType:   strings.TrimSpace(voucher.VoucherType),
				VoucherNumber: strings.TrimSpace(voucher.VoucherNumber),
				VoucherDate:   voucherDate,
				PartyName:     strings.TrimSpace(voucher.PartyName),
				PartyMasterID: strings.TrimSpace(voucher.PartyMasterID),
				Narration:     strings.TrimSpace(voucher.Narration),
				Amount:        amount,
				LedgerEntries: datatypes.JSON(entriesJSON),
				AlterID:       voucher.AlterID,
			},
		}
		if s.refreshBalances {
			record.ARLedgers = receivableLedgers(voucher)
		}
		records = append(records, record)
	}
	return records, failures, nil
}

func buildQuery(report, company string, params QueryParams) tally.Query {
	q := tally.Query{Report: report, Company: company}
	if params.Range != nil {
		q.FromDate = params.Range.FromTallyDate()
		q.ToDate = params.Range.ToTallyDate()
		return q
	}
	q.FromAlterID = params.FromAlterID
	q.ToAlterID = params.ToAlterID
	return q
}

// receivableLedgers extracts the distinct party ledgers posting against
// accounts receivable, for the balance-refresh follow-up.
func receivableLedgers(voucher tally.Voucher) []string {
	seen := map[string]bool{}
	var ledgers []string
	for _, entry := range voucher.LedgerEntries {
		if !entry.IsReceivableGroup() {
			continue
		}
		id := strings.TrimSpace(entry.LedgerMasterID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ledgers = append(ledgers, id)
	}
	return ledgers
}

// parseAmount handles the source's amount formatting; an empty value is
// zero, anything unparsable is a per-record failure.
func parseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	value = strings.ReplaceAll(value, ",", "")
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", value, err)
	}
	return d, nil
}

func rawOf(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
