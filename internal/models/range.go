package models

import "time"

// TimeRange is a symbolic query window accepted by the history and stats endpoints.
type TimeRange string

const (
	Range1Minute  TimeRange = "1m"
	Range5Minutes TimeRange = "5m"
	Range1Hour    TimeRange = "1h"
	Range1Day     TimeRange = "1d"
	Range1Week    TimeRange = "1w"
	Range1Month   TimeRange = "1M"
	Range1Year    TimeRange = "1y"

	DefaultRange = Range1Hour
)

// AllRanges lists every accepted range, shortest first.
var AllRanges = []TimeRange{
	Range1Minute, Range5Minutes, Range1Hour,
	Range1Day, Range1Week, Range1Month, Range1Year,
}

// ParseTimeRange maps a raw query value onto a TimeRange.
// ok is false when the value was empty or unknown and DefaultRange was returned.
// Matching is case sensitive: "1m" is a minute, "1M" a month.
func ParseTimeRange(raw string) (r TimeRange, ok bool) {
	for _, candidate := range AllRanges {
		if string(candidate) == raw {
			return candidate, true
		}
	}
	return DefaultRange, false
}

// Cutoff returns the earliest timestamp (inclusive) the range accepts relative to now.
// Month and year are calendar offsets.
func (r TimeRange) Cutoff(now time.Time) time.Time {
	switch r {
	case Range1Minute:
		return now.Add(-time.Minute)
	case Range5Minutes:
		return now.Add(-5 * time.Minute)
	case Range1Hour:
		return now.Add(-time.Hour)
	case Range1Day:
		return now.Add(-24 * time.Hour)
	case Range1Week:
		return now.Add(-7 * 24 * time.Hour)
	case Range1Month:
		return now.AddDate(0, -1, 0)
	case Range1Year:
		return now.AddDate(-1, 0, 0)
	default:
		return DefaultRange.Cutoff(now)
	}
}

// Aggregated reports whether the range is served as bucketed averages
// instead of raw samples.
func (r TimeRange) Aggregated() bool {
	switch r {
	case Range1Day, Range1Week, Range1Month, Range1Year:
		return true
	default:
		return false
	}
}

// Daily reports whether an aggregated range uses daily rather than hourly buckets.
func (r TimeRange) Daily() bool {
	return r == Range1Month || r == Range1Year
}

func (r TimeRange) String() string {
	return string(r)
}
