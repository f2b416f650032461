package tally

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// The report interface exports unpredictably large collections. The
// parser walks structural tokens and decodes one record at a time, so a
// caller holding a bounded window never materializes the full tree.

// ParseLedgers yields up to max customer ledgers from a raw report
// payload. max <= 0 means no bound.
func ParseLedgers(r io.Reader, max int) ([]Ledger, error) {
	records, err := parseStream[Ledger](r, "LEDGER", max)
	for i := range records {
		records[i].AlterID = normalizeAlterID(records[i].AlterID)
	}
	return records, err
}

// ParseVouchers yields up to max vouchers from a raw report payload.
func ParseVouchers(r io.Reader, max int) ([]Voucher, error) {
	records, err := parseStream[Voucher](r, "VOUCHER", max)
	for i := range records {
		records[i].AlterID = normalizeAlterID(records[i].AlterID)
	}
	return records, err
}

// ParseDeletedVouchers yields up to max deletion events.
func ParseDeletedVouchers(r io.Reader, max int) ([]DeletedVoucher, error) {
	return parseStream[DeletedVoucher](r, "DELETEDVOUCHER", max)
}

func parseStream[T any](r io.Reader, tag string, max int) ([]T, error) {
	decoder := xml.NewDecoder(r)
	// Exports from older source versions are not strictly well-formed.
	decoder.Strict = false

	var records []T
	for {
		if max > 0 && len(records) >= max {
			return records, nil
		}
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, err
		}
		start, ok := token.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, tag) {
			continue
		}
		var record T
		if err := decoder.DecodeElement(&record, &start); err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// normalizeAlterID defaults a missing row-level change-id to "0".
func normalizeAlterID(alterID string) string {
	alterID = strings.TrimSpace(alterID)
	if alterID == "" {
		return "0"
	}
	return alterID
}
