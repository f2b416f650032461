package utils_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthRanges_PartialTrailingMonth(t *testing.T) {
	// Book start 2023-04-01, today 2023-06-15: three monthly batches,
	// the last one partial.
	ranges := utils.MonthRanges(day(2023, time.April, 1), day(2023, time.June, 15))
	if len(ranges) != 3 {
		t.Fatalf("MonthRanges: got %d ranges, want 3", len(ranges))
	}

	expect := []struct {
		from, to, key string
	}{
		{"20230401", "20230430", "2023-04"},
		{"20230501", "20230531", "2023-05"},
		{"20230601", "20230615", "2023-06"},
	}
	for i, want := range expect {
		got := ranges[i]
		if got.FromTallyDate() != want.from || got.ToTallyDate() != want.to {
			t.Errorf("range %d: got %s..%s, want %s..%s", i, got.FromTallyDate(), got.ToTallyDate(), want.from, want.to)
		}
		if got.MonthKey() != want.key {
			t.Errorf("range %d: month key %q, want %q", i, got.MonthKey(), want.key)
		}
	}
}

func TestMonthRanges_MidMonthStart(t *testing.T) {
	ranges := utils.MonthRanges(day(2024, time.January, 15), day(2024, time.February, 10))
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if ranges[0].FromTallyDate() != "20240115" || ranges[0].ToTallyDate() != "20240131" {
		t.Errorf("first range: got %s..%s", ranges[0].FromTallyDate(), ranges[0].ToTallyDate())
	}
	if ranges[1].FromTallyDate() != "20240201" || ranges[1].ToTallyDate() != "20240210" {
		t.Errorf("second range: got %s..%s", ranges[1].FromTallyDate(), ranges[1].ToTallyDate())
	}
}

func TestMonthRanges_SingleDay(t *testing.T) {
	ranges := utils.MonthRanges(day(2023, time.July, 31), day(2023, time.July, 31))
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if ranges[0].FromTallyDate() != "20230731" || ranges[0].ToTallyDate() != "20230731" {
		t.Errorf("got %s..%s", ranges[0].FromTallyDate(), ranges[0].ToTallyDate())
	}
}

func TestMonthRanges_ReversedBounds(t *testing.T) {
	if ranges := utils.MonthRanges(day(2023, time.June, 1), day(2023, time.May, 1)); ranges != nil {
		t.Fatalf("reversed bounds: got %v, want nil", ranges)
	}
}

func TestParseTallyDate(t *testing.T) {
	got, err := utils.ParseTallyDate(" 20230401 ")
	if err != nil {
		t.Fatalf("ParseTallyDate: %v", err)
	}
	if !got.Equal(day(2023, time.April, 1)) {
		t.Errorf("got %v", got)
	}

	if _, err := utils.ParseTallyDate(""); err == nil {
		t.Error("empty date: want error")
	}
	if _, err := utils.ParseTallyDate("2023-04-01"); err == nil {
		t.Error("dashed date: want error")
	}
}
