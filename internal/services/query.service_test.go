package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metricwatch/internal/models"
)

func newQueryFixture(capacity int, now time.Time, opts ...QueryOption) (*MetricsStore, *QueryService) {
	store := NewMetricsStore(capacity, WithStoreClock(func() time.Time { return now }))
	opts = append([]QueryOption{WithQueryClock(func() time.Time { return now })}, opts...)
	return store, NewQueryService(store, zerolog.Nop(), opts...)
}

func TestQueryService_StatsScenario(t *testing.T) {
	now := baseTime.Add(time.Minute)
	store, query := newQueryFixture(100, now)

	store.Append(sampleAt(baseTime, 10))
	store.Append(sampleAt(baseTime.Add(time.Second), 20))
	store.Append(sampleAt(baseTime.Add(2*time.Second), 30))

	stats := query.Stats(models.Range1Hour)
	assert.Equal(t, float64(20), stats.AvgCPU)
	assert.Equal(t, float64(30), stats.MaxCPU)
	assert.Equal(t, float64(10), stats.MinCPU)
}

func TestQueryService_StatsAllFields(t *testing.T) {
	now := baseTime.Add(time.Minute)
	store, query := newQueryFixture(100, now)

	store.Append(models.SystemMetricSample{Timestamp: baseTime, CPUUsage: 5, MemoryUsage: 40, NetworkRx: 100, NetworkTx: 10})
	store.Append(models.SystemMetricSample{Timestamp: baseTime.Add(time.Second), CPUUsage: 15, MemoryUsage: 60, NetworkRx: 300, NetworkTx: 30})

	assert.Equal(t, models.AggregatedStats{
		AvgCPU:         10,
		MaxCPU:         15,
		MinCPU:         5,
		AvgMemory:      50,
		MaxMemory:      60,
		MinMemory:      40,
		TotalNetworkRx: 400,
		TotalNetworkTx: 40,
	}, query.Stats(models.Range5Minutes))
}

func TestQueryService_EmptyRange(t *testing.T) {
	now := baseTime
	store, query := newQueryFixture(10, now)
	store.Append(sampleAt(now.Add(-2*time.Hour), 50))

	for _, r := range []models.TimeRange{models.Range1Minute, models.Range1Hour} {
		history := query.History(r)
		assert.NotNil(t, history)
		assert.Empty(t, history)
		assert.Equal(t, models.AggregatedStats{}, query.Stats(r))
	}

	_, emptyQuery := newQueryFixture(10, now)
	for _, r := range models.AllRanges {
		history := emptyQuery.History(r)
		assert.NotNil(t, history, r)
		assert.Empty(t, history, r)
		assert.Equal(t, models.AggregatedStats{}, emptyQuery.Stats(r), r)
	}
}

func TestQueryService_RangeCutoffBoundaries(t *testing.T) {
	now := time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC)

	for _, r := range models.AllRanges {
		store, query := newQueryFixture(10, now)
		cutoff := r.Cutoff(now)

		store.Append(sampleAt(cutoff.Add(-time.Nanosecond), 1))
		store.Append(sampleAt(cutoff, 2))
		store.Append(sampleAt(now, 3))

		stats := query.Stats(r)
		assert.Equal(t, float64(2), stats.MinCPU, r)
		assert.Equal(t, float64(3), stats.MaxCPU, r)
		assert.Equal(t, 2.5, stats.AvgCPU, r)
	}
}

func TestQueryService_RawHistoryNewestFirst(t *testing.T) {
	now := baseTime.Add(time.Minute)
	store, query := newQueryFixture(100, now)
	for i := 0; i < 5; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Second), float64(i)))
	}

	history := query.History(models.Range1Hour)
	assert.Equal(t, []float64{4, 3, 2, 1, 0}, cpuValues(history))
	for _, s := range history {
		assert.Zero(t, s.SampleCount)
	}
}

func TestQueryService_RawHistoryCapped(t *testing.T) {
	now := baseTime.Add(time.Hour)
	store, query := newQueryFixture(100, now, WithMaxResults(10))
	for i := 0; i < 30; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Second), float64(i)))
	}

	history := query.History(models.Range1Hour)
	require.Len(t, history, 10)
	assert.Equal(t, float64(29), history[0].CPUUsage)
	assert.Equal(t, float64(20), history[9].CPUUsage)

	// stats use the same capped set
	assert.Equal(t, float64(20), query.Stats(models.Range1Hour).MinCPU)
}

func TestQueryService_BogusDurationMatchesDefault(t *testing.T) {
	now := baseTime.Add(2 * time.Hour)
	store, query := newQueryFixture(100, now)
	store.Append(sampleAt(now.Add(-90*time.Minute), 99))
	store.Append(sampleAt(now.Add(-30*time.Minute), 10))
	store.Append(sampleAt(now.Add(-time.Minute), 20))

	bogus := query.ResolveRange("bogus")
	assert.Equal(t, models.Range1Hour, bogus)
	assert.Equal(t, query.History(query.ResolveRange("1h")), query.History(bogus))
	assert.Equal(t, query.Stats(query.ResolveRange("1h")), query.Stats(bogus))
	assert.Equal(t, models.Range1Hour, query.ResolveRange(""))
}

func TestQueryService_HourlyBuckets(t *testing.T) {
	now := time.Date(2024, time.June, 1, 18, 0, 0, 0, time.UTC)
	store, query := newQueryFixture(100, now)

	first := time.Date(2024, time.June, 1, 12, 10, 0, 0, time.UTC)
	second := first.Add(90 * time.Minute) // 13:40

	store.Append(models.SystemMetricSample{Timestamp: first, CPUUsage: 10, MemoryUsage: 30})
	store.Append(models.SystemMetricSample{Timestamp: first.Add(20 * time.Minute), CPUUsage: 20, MemoryUsage: 50})
	store.Append(models.SystemMetricSample{Timestamp: second, CPUUsage: 80, MemoryUsage: 90})

	history := query.History(models.Range1Day)
	require.Len(t, history, 2)

	// newest bucket first
	assert.Equal(t, time.Date(2024, time.June, 1, 13, 0, 0, 0, time.UTC), history[0].Timestamp)
	assert.Equal(t, float64(80), history[0].CPUUsage)
	assert.Equal(t, 1, history[0].SampleCount)

	assert.Equal(t, time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC), history[1].Timestamp)
	assert.Equal(t, float64(15), history[1].CPUUsage)
	assert.Equal(t, float64(40), history[1].MemoryUsage)
	assert.Equal(t, 2, history[1].SampleCount)
}

func TestQueryService_DailyBucketsSkipEmptyDays(t *testing.T) {
	now := time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC)
	store, query := newQueryFixture(100, now)

	store.Append(sampleAt(time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC), 10))
	store.Append(sampleAt(time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC), 30))
	store.Append(sampleAt(time.Date(2024, time.June, 5, 9, 0, 0, 0, time.UTC), 50))

	history := query.History(models.Range1Month)
	require.Len(t, history, 2)
	assert.Equal(t, time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC), history[0].Timestamp)
	assert.Equal(t, float64(50), history[0].CPUUsage)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), history[1].Timestamp)
	assert.Equal(t, float64(20), history[1].CPUUsage)
}

func TestQueryService_AggregatedModeIsNotCapped(t *testing.T) {
	now := baseTime.Add(24 * time.Hour)
	store, query := newQueryFixture(100, now, WithMaxResults(5))
	for i := 0; i < 20; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Minute), 10))
	}

	history := query.History(models.Range1Day)
	total := 0
	for _, bucket := range history {
		total += bucket.SampleCount
	}
	assert.Equal(t, 20, total)
}

func TestQueryService_CustomBucketWidth(t *testing.T) {
	now := baseTime.Add(time.Hour)
	store, query := newQueryFixture(100, now, WithBucketWidths(15*time.Minute, 0))
	store.Append(sampleAt(baseTime, 1))
	store.Append(sampleAt(baseTime.Add(20*time.Minute), 2))
	store.Append(sampleAt(baseTime.Add(40*time.Minute), 3))

	assert.Len(t, query.History(models.Range1Week), 3)
}

func TestQueryService_ResultCacheInvalidatesOnAppend(t *testing.T) {
	now := baseTime.Add(time.Hour)
	store, query := newQueryFixture(100, now, WithResultCache(time.Minute))
	query.Start()
	defer query.Stop()

	store.Append(sampleAt(baseTime, 10))
	first := query.History(models.Range1Day)
	require.Len(t, first, 1)
	assert.Equal(t, float64(10), first[0].CPUUsage)

	assert.Equal(t, first, query.History(models.Range1Day))

	store.Append(sampleAt(baseTime.Add(time.Minute), 30))
	second := query.History(models.Range1Day)
	require.Len(t, second, 1)
	assert.Equal(t, float64(20), second[0].CPUUsage)
	assert.Equal(t, 2, second[0].SampleCount)
}

func TestQueryService_ResultCacheDropsSamplesLeavingWindow(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }
	store := NewMetricsStore(100)
	query := NewQueryService(store, zerolog.Nop(), WithQueryClock(clock), WithResultCache(time.Hour))
	query.Start()
	defer query.Stop()

	store.Append(sampleAt(baseTime.Add(-23*time.Hour), 40))
	require.Len(t, query.History(models.Range1Day), 1)
	require.Len(t, query.History(models.Range1Day), 1)

	// no appends or prunes, only time passing
	now = baseTime.Add(2 * time.Hour)
	for i := 0; i < 3; i++ {
		assert.Empty(t, query.History(models.Range1Day))
		assert.Equal(t, models.AggregatedStats{}, query.Stats(models.Range1Day))
	}
}

func TestQueryService_Current(t *testing.T) {
	store, query := newQueryFixture(10, baseTime)

	_, ok := query.Current()
	assert.False(t, ok)

	store.Append(sampleAt(baseTime, 1))
	store.Append(sampleAt(baseTime.Add(time.Second), 2))

	current, ok := query.Current()
	require.True(t, ok)
	assert.Equal(t, float64(2), current.CPUUsage)
}

func TestBucketize_ZeroWidth(t *testing.T) {
	assert.Empty(t, Bucketize([]models.SystemMetricSample{sampleAt(baseTime, 1)}, 0))
	assert.NotNil(t, Bucketize(nil, time.Hour))
}

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, models.AggregatedStats{}, ComputeStats(nil))
}
