package tally_test

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/tally_sync_agent/tally"
)

func TestBuildRequest_DateRange(t *testing.T) {
	body, err := tally.BuildRequest(tally.Query{
		Report:   tally.ReportSalesInvoices,
		Company:  "Demo Co",
		FromDate: "20230401",
		ToDate:   "20230430",
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	envelope := string(body)

	for _, want := range []string{
		"<TALLYREQUEST>Export Data</TALLYREQUEST>",
		"<REPORTNAME>SyncSalesVouchers</REPORTNAME>",
		"<SVCURRENTCOMPANY>Demo Co</SVCURRENTCOMPANY>",
		"<SVFROMDATE>20230401</SVFROMDATE>",
		"<SVTODATE>20230430</SVTODATE>",
	} {
		if !strings.Contains(envelope, want) {
			t.Errorf("envelope missing %s\n%s", want, envelope)
		}
	}
	if strings.Contains(envelope, "SVFROMALTERID") {
		t.Error("date-range query must not carry an ALTERID bound")
	}
}

func TestBuildRequest_AlterIDWindow(t *testing.T) {
	body, err := tally.BuildRequest(tally.Query{
		Report:      tally.ReportCustomers,
		Company:     "Demo Co",
		FromAlterID: "100",
		ToAlterID:   "200",
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	envelope := string(body)

	if !strings.Contains(envelope, "<SVFROMALTERID>100</SVFROMALTERID>") {
		t.Errorf("envelope missing ALTERID lower bound\n%s", envelope)
	}
	if !strings.Contains(envelope, "<SVTOALTERID>200</SVTOALTERID>") {
		t.Errorf("envelope missing ALTERID upper bound\n%s", envelope)
	}
	if strings.Contains(envelope, "SVFROMDATE") {
		t.Error("ALTERID query must not carry a date range")
	}
}
