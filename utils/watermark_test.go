package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
)

func TestWatermarkValue(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"503", 503},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
		{"-7", 0},
	}
	for _, c := range cases {
		if got := utils.WatermarkValue(c.in); got != c.want {
			t.Errorf("WatermarkValue(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestMaxWatermark(t *testing.T) {
	if got := utils.MaxWatermark("500", "503"); got != "503" {
		t.Errorf("got %q, want 503", got)
	}
	if got := utils.MaxWatermark("503", "502"); got != "503" {
		t.Errorf("got %q, want 503", got)
	}
	// A corrupted side counts as zero and can only lose.
	if got := utils.MaxWatermark("junk", "17"); got != "17" {
		t.Errorf("got %q, want 17", got)
	}
}

func TestMaxSourceID(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		// Both numeric: numeric order, not string order.
		{"900", "950", "950"},
		{"1000", "950", "1000"},
		// Non-numeric ids fall back to length, then string order.
		{"VCH-0900", "VCH-0950", "VCH-0950"},
		{"VCH-99", "VCH-0100", "VCH-0100"},
		// Mixed: the zero seed never wins against a real id.
		{"0", "VCH-0900", "VCH-0900"},
	}
	for _, c := range cases {
		if got := utils.MaxSourceID(c.a, c.b); got != c.want {
			t.Errorf("MaxSourceID(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}

func TestWatermarkLess(t *testing.T) {
	if !utils.WatermarkLess("99", "100") {
		t.Error("99 < 100 expected")
	}
	if utils.WatermarkLess("100", "100") {
		t.Error("equal watermarks are not less")
	}
	if utils.WatermarkLess("100", "oops") {
		t.Error("unparsable candidate must compare as zero")
	}
}
