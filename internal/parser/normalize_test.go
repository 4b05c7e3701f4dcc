package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestampSeconds(t *testing.T) {
	sec, ok := NormalizeTimestamp(float64(1700000000))
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), sec)
}

func TestNormalizeTimestampNegativeRejected(t *testing.T) {
	_, ok := NormalizeTimestamp(float64(-5))
	assert.False(t, ok)
}

func TestNormalizeTimestampMilliseconds(t *testing.T) {
	// 1700000060000 read as seconds would be year ~55000; the
	// millisecond heuristic should divide it back down to 1700000060.
	sec, ok := NormalizeTimestamp(float64(1700000060000))
	assert.True(t, ok)
	assert.Equal(t, int64(1700000060), sec)
}

func TestNormalizeTimestampISO8601String(t *testing.T) {
	sec, ok := NormalizeTimestamp("2023-11-14T22:13:20Z")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), sec)
}

func TestNormalizeTimestampNumericString(t *testing.T) {
	sec, ok := NormalizeTimestamp("1700000000")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), sec)
}

func TestNormalizeTimestampOutOfPlausibilityWindow(t *testing.T) {
	// year 1970 is before PlausibleYearMin.
	_, ok := NormalizeTimestamp(float64(0))
	assert.False(t, ok)
}

func TestNormalizeTimestampUnsupportedType(t *testing.T) {
	_, ok := NormalizeTimestamp([]string{"nope"})
	assert.False(t, ok)
}

func TestNormalizeTimestampScenarioMixedValidity(t *testing.T) {
	inputs := []any{float64(1700000000), float64(-5), float64(1700000060)}
	var valid int
	for _, in := range inputs {
		if _, ok := NormalizeTimestamp(in); ok {
			valid++
		}
	}
	assert.Equal(t, 2, valid)
}
