package utils

import (
	"strconv"
	"strings"
)

// Watermarks are string-encoded ALTERID integers. The zero watermark is
// "0"; anything unparsable is treated as 0 so a corrupted value can only
// widen a re-fetch, never skip records.

func WatermarkValue(watermark string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(watermark), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func WatermarkLess(a, b string) bool {
	return WatermarkValue(a) < WatermarkValue(b)
}

// MaxWatermark returns the numerically larger of the two watermarks.
func MaxWatermark(a, b string) string {
	if WatermarkLess(a, b) {
		return strconv.FormatInt(WatermarkValue(b), 10)
	}
	return strconv.FormatInt(WatermarkValue(a), 10)
}

// Source master ids are usually numeric but the source does not
// guarantee it. Ids that both parse as integers compare numerically;
// otherwise the longer string orders after the shorter, then plain
// string comparison decides.

func SourceIDLess(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func MaxSourceID(a, b string) string {
	if SourceIDLess(a, b) {
		return strings.TrimSpace(b)
	}
	return strings.TrimSpace(a)
}
