package parser

import (
	"strconv"
	"time"
)

// PlausibleYearMin/Max bound the timestamp plausibility window (§4.2:
// "drop messages whose year falls outside a plausibility window").
const (
	PlausibleYearMin = 2000
	PlausibleYearMax = 2100
)

// msPerSecondThreshold distinguishes millisecond from second timestamps: any
// integer whose magnitude implies a year far beyond PlausibleYearMax when
// read as seconds is almost certainly milliseconds instead.
const msPerSecondThreshold = int64(30000000000) // ~ year 2920 if read as seconds

// NormalizeTimestamp accepts an integer (seconds or milliseconds, per the
// heuristic below) or an ISO-8601 string and returns whole seconds. ok is
// false when the value is unparseable or falls outside the plausibility
// window.
func NormalizeTimestamp(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return normalizeInt(int64(v))
	case int64:
		return normalizeInt(v)
	case int:
		return normalizeInt(int64(v))
	case string:
		return normalizeString(v)
	default:
		return 0, false
	}
}

func normalizeInt(v int64) (int64, bool) {
	if v < 0 {
		return 0, false
	}
	sec := v
	if v > msPerSecondThreshold {
		sec = v / 1000
	}
	return plausible(sec)
}

func normalizeString(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return normalizeInt(n)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return plausible(t.Unix())
		}
	}
	return 0, false
}

func plausible(sec int64) (int64, bool) {
	year := time.Unix(sec, 0).UTC().Year()
	if year < PlausibleYearMin || year > PlausibleYearMax {
		return 0, false
	}
	return sec, true
}
