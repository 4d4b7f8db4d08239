package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		raw      string
		expected TimeRange
		ok       bool
	}{
		{"1m", Range1Minute, true},
		{"5m", Range5Minutes, true},
		{"1h", Range1Hour, true},
		{"1d", Range1Day, true},
		{"1w", Range1Week, true},
		{"1M", Range1Month, true},
		{"1y", Range1Year, true},
		{"", Range1Hour, false},
		{"bogus", Range1Hour, false},
		{"1Y", Range1Hour, false},
	}

	for _, test := range tests {
		r, ok := ParseTimeRange(test.raw)
		assert.Equal(t, test.expected, r, test.raw)
		assert.Equal(t, test.ok, ok, test.raw)
	}
}

func TestTimeRange_Cutoff(t *testing.T) {
	now := time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(-time.Minute), Range1Minute.Cutoff(now))
	assert.Equal(t, now.Add(-5*time.Minute), Range5Minutes.Cutoff(now))
	assert.Equal(t, now.Add(-time.Hour), Range1Hour.Cutoff(now))
	assert.Equal(t, now.Add(-24*time.Hour), Range1Day.Cutoff(now))
	assert.Equal(t, now.Add(-7*24*time.Hour), Range1Week.Cutoff(now))
	// AddDate normalises Feb 31 to Mar 2.
	assert.Equal(t, time.Date(2024, time.March, 2, 12, 0, 0, 0, time.UTC), Range1Month.Cutoff(now))
	assert.Equal(t, time.Date(2023, time.March, 31, 12, 0, 0, 0, time.UTC), Range1Year.Cutoff(now))
	assert.Equal(t, now.Add(-time.Hour), TimeRange("nope").Cutoff(now))
}

func TestTimeRange_Modes(t *testing.T) {
	for _, r := range []TimeRange{Range1Minute, Range5Minutes, Range1Hour} {
		assert.False(t, r.Aggregated(), r)
	}
	for _, r := range []TimeRange{Range1Day, Range1Week, Range1Month, Range1Year} {
		assert.True(t, r.Aggregated(), r)
	}
	assert.False(t, Range1Day.Daily())
	assert.False(t, Range1Week.Daily())
	assert.True(t, Range1Month.Daily())
	assert.True(t, Range1Year.Daily())
}

func TestSystemMetricSample_Normalize(t *testing.T) {
	s := SystemMetricSample{
		CPUUsage:    140,
		MemoryUsage: -3,
		DiskUsage:   55,
		NetworkRx:   -10,
		NetworkTx:   20,
	}.Normalize()

	assert.Equal(t, float64(100), s.CPUUsage)
	assert.Equal(t, float64(0), s.MemoryUsage)
	assert.Equal(t, float64(55), s.DiskUsage)
	assert.Equal(t, float64(0), s.NetworkRx)
	assert.Equal(t, float64(20), s.NetworkTx)
}
