package utils

import (
	"fmt"
	"strings"
	"time"
)

// TallyDateLayout is the date format the report interface expects
// for SVFROMDATE / SVTODATE static variables.
const TallyDateLayout = "20060102"

type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) FromTallyDate() string {
	return r.From.Format(TallyDateLayout)
}

func (r DateRange) ToTallyDate() string {
	return r.To.Format(TallyDateLayout)
}

// MonthKey returns the range's month label, e.g. "2023-04". Backfill
// ranges never span a calendar month, so the From month identifies it.
func (r DateRange) MonthKey() string {
	return r.From.Format("2006-01")
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

// MonthRanges partitions [from, to] into calendar-month sub-ranges. The
// first range starts at from, the last ends at to; a partial trailing
// month is kept partial.
func MonthRanges(from, to time.Time) []DateRange {
	from = truncateToDay(from)
	to = truncateToDay(to)
	if to.Before(from) {
		return nil
	}

	var ranges []DateRange
	cursor := from
	for !cursor.After(to) {
		monthEnd := endOfMonth(cursor)
		rangeEnd := monthEnd
		if rangeEnd.After(to) {
			rangeEnd = to
		}
		ranges = append(ranges, DateRange{From: cursor, To: rangeEnd})
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return ranges
}

func ParseTallyDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return time.Parse(TallyDateLayout, value)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}
