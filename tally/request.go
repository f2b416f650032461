package tally

import (
	"bytes"
	"encoding/xml"
)

// The report interface accepts an Export Data envelope naming a report
// and a set of static variables. Date-bounded queries carry
// SVFROMDATE/SVTODATE; incremental queries carry an ALTERID lower bound.

type requestEnvelope struct {
	XMLName xml.Name      `xml:"ENVELOPE"`
	Header  requestHeader `xml:"HEADER"`
	Body    requestBody   `xml:"BODY"`
}

type requestHeader struct {
	TallyRequest string `xml:"TALLYREQUEST"`
}

type requestBody struct {
	ExportData exportData `xml:"EXPORTDATA"`
}

type exportData struct {
	RequestDesc requestDesc `xml:"REQUESTDESC"`
}

type requestDesc struct {
	ReportName      string          `xml:"REPORTNAME"`
	StaticVariables staticVariables `xml:"STATICVARIABLES"`
}

type staticVariables struct {
	Company      string `xml:"SVCURRENTCOMPANY,omitempty"`
	ExportFormat string `xml:"SVEXPORTFORMAT"`
	FromDate     string `xml:"SVFROMDATE,omitempty"`
	ToDate       string `xml:"SVTODATE,omitempty"`
	FromAlterID  string `xml:"SVFROMALTERID,omitempty"`
	ToAlterID    string `xml:"SVTOALTERID,omitempty"`
}

// BuildRequest serializes a query into the wire envelope.
func BuildRequest(q Query) ([]byte, error) {
	env := requestEnvelope{
		Header: requestHeader{TallyRequest: "Export Data"},
		Body: requestBody{
			ExportData: exportData{
				RequestDesc: requestDesc{
					ReportName: q.Report,
					StaticVariables: staticVariables{
						Company:      q.Company,
						ExportFormat: "$$SysName:XML",
						FromDate:     q.FromDate,
						ToDate:       q.ToDate,
						FromAlterID:  q.FromAlterID,
						ToAlterID:    q.ToAlterID,
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
