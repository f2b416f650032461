package tally

import (
	"encoding/xml"
	"strings"
)

// Report names understood by the source system's report interface. Each
// maps to one named record collection in the response.
const (
	ReportCustomers       = "SyncLedgers"
	ReportSalesInvoices   = "SyncSalesVouchers"
	ReportReceipts        = "SyncReceiptVouchers"
	ReportJournals        = "SyncJournalVouchers"
	ReportDebitNotes      = "SyncDebitNoteVouchers"
	ReportDeletedVouchers = "SyncDeletedVouchers"
)

// Query selects a named report plus either a date range or an ALTERID
// lower bound. FromDate/ToDate are YYYYMMDD.
type Query struct {
	Report      string
	Company     string
	FromDate    string
	ToDate      string
	FromAlterID string
	ToAlterID   string
}

// Ledger is one customer ledger row as exported by the report.
type Ledger struct {
	XMLName        xml.Name `xml:"LEDGER"`
	Name           string   `xml:"NAME"`
	MasterID       string   `xml:"MASTERID"`
	GUID           string   `xml:"GUID"`
	AlterID        string   `xml:"ALTERID"`
	Parent         string   `xml:"PARENT"`
	Email          string   `xml:"EMAIL"`
	Phone          string   `xml:"LEDGERPHONE"`
	Address        string   `xml:"ADDRESS"`
	StateName      string   `xml:"STATENAME"`
	CountryName    string   `xml:"COUNTRYNAME"`
	GSTIN          string   `xml:"PARTYGSTIN"`
	OpeningBalance string   `xml:"OPENINGBALANCE"`
	ClosingBalance string   `xml:"CLOSINGBALANCE"`
}

// Voucher is one voucher row (sales invoice, receipt, journal or debit
// note depending on the report queried).
type Voucher struct {
	XMLName       xml.Name      `xml:"VOUCHER"`
	MasterID      string        `xml:"MASTERID"`
	GUID          string        `xml:"GUID"`
	AlterID       string        `xml:"ALTERID"`
	VoucherType   string        `xml:"VOUCHERTYPENAME"`
	VoucherNumber string        `xml:"VOUCHERNUMBER"`
	Date          string        `xml:"DATE"`
	PartyName     string        `xml:"PARTYLEDGERNAME"`
	PartyMasterID string        `xml:"PARTYMASTERID"`
	Narration     string        `xml:"NARRATION"`
	Amount        string        `xml:"AMOUNT"`
	LedgerEntries []LedgerEntry `xml:"ALLLEDGERENTRIES.LIST"`
}

// LedgerEntry is one line of a voucher's double entry.
type LedgerEntry struct {
	LedgerName       string `xml:"LEDGERNAME"`
	LedgerMasterID   string `xml:"LEDGERMASTERID"`
	LedgerGroup      string `xml:"LEDGERGROUP"`
	Amount           string `xml:"AMOUNT"`
	IsDeemedPositive string `xml:"ISDEEMEDPOSITIVE"`
}

// DeletedVoucher is one row of the deleted-voucher report. The report
// exposes no ALTERID; the reconciler advances its watermark from the
// maximum MasterID observed instead.
type DeletedVoucher struct {
	XMLName     xml.Name `xml:"DELETEDVOUCHER"`
	GUID        string   `xml:"GUID"`
	MasterID    string   `xml:"MASTERID"`
	VoucherType string   `xml:"VOUCHERTYPENAME"`
	Action      string   `xml:"ACTION"`
}

// IsReceivableGroup reports whether the entry posts against an
// accounts-receivable ledger group.
func (e LedgerEntry) IsReceivableGroup() bool {
	return strings.EqualFold(strings.TrimSpace(e.LedgerGroup), "Sundry Debtors")
}
