package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metricwatch/internal/models"
)

var baseTime = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func sampleAt(ts time.Time, cpu float64) models.SystemMetricSample {
	return models.SystemMetricSample{Timestamp: ts, CPUUsage: cpu}
}

func cpuValues(samples []models.SystemMetricSample) []float64 {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.CPUUsage)
	}
	return values
}

func TestMetricsStore_CapacityInvariant(t *testing.T) {
	const capacity = 7
	store := NewMetricsStore(capacity)

	for i := 0; i < 50; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Second), float64(i)))
		require.LessOrEqual(t, store.Len(), capacity)

		all := store.Select(time.Time{}, 0)
		oldestExpected := i - capacity + 1
		if oldestExpected < 0 {
			oldestExpected = 0
		}
		assert.Equal(t, float64(oldestExpected), all[0].CPUUsage)
		assert.Equal(t, float64(i), all[len(all)-1].CPUUsage)
	}
}

func TestMetricsStore_EvictsOldestFirst(t *testing.T) {
	store := NewMetricsStore(2)

	store.Append(sampleAt(baseTime, 1))                    // A
	store.Append(sampleAt(baseTime.Add(time.Second), 2))   // B
	store.Append(sampleAt(baseTime.Add(2*time.Second), 3)) // C

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []float64{2, 3}, cpuValues(store.Select(time.Time{}, 0)))
}

func TestMetricsStore_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultStoreCapacity, NewMetricsStore(0).Capacity())
	assert.Equal(t, DefaultStoreCapacity, NewMetricsStore(-5).Capacity())
}

func TestMetricsStore_QueryRangePreservesOrder(t *testing.T) {
	store := NewMetricsStore(100)
	for i := 0; i < 20; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Second), float64(i)))
	}

	result := store.QueryRange(baseTime.Add(5 * time.Second))
	require.Len(t, result, 15)
	for i := 1; i < len(result); i++ {
		assert.False(t, result[i].Timestamp.Before(result[i-1].Timestamp))
		assert.Equal(t, result[i-1].CPUUsage+1, result[i].CPUUsage)
	}
}

func TestMetricsStore_QueryRangeCutoffIsInclusive(t *testing.T) {
	store := NewMetricsStore(10)
	cutoff := baseTime.Add(time.Minute)

	store.Append(sampleAt(cutoff.Add(-time.Nanosecond), 1))
	store.Append(sampleAt(cutoff, 2))
	store.Append(sampleAt(cutoff.Add(time.Second), 3))

	assert.Equal(t, []float64{2, 3}, cpuValues(store.QueryRange(cutoff)))
}

func TestMetricsStore_QueryRangeKeepsMostRecent(t *testing.T) {
	store := NewMetricsStore(DefaultStoreCapacity)
	total := MaxQueryResults + 250
	for i := 0; i < total; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Second), float64(i)))
	}

	result := store.QueryRange(time.Time{})
	require.Len(t, result, MaxQueryResults)
	assert.Equal(t, float64(250), result[0].CPUUsage)
	assert.Equal(t, float64(total-1), result[len(result)-1].CPUUsage)

	assert.Len(t, store.Select(time.Time{}, 0), total)
}

func TestMetricsStore_QueryRangeDoesNotMutate(t *testing.T) {
	store := NewMetricsStore(5)
	store.Append(sampleAt(baseTime, 1))
	version := store.Version()

	result := store.QueryRange(time.Time{})
	result[0].CPUUsage = 99

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, float64(1), latest.CPUUsage)
	assert.Equal(t, version, store.Version())
	assert.Equal(t, 1, store.Len())
}

func TestMetricsStore_EmptyQuery(t *testing.T) {
	store := NewMetricsStore(5)

	result := store.QueryRange(baseTime)
	assert.NotNil(t, result)
	assert.Empty(t, result)

	_, ok := store.Latest()
	assert.False(t, ok)
}

func TestMetricsStore_AppendKeepsTimestampsMonotonic(t *testing.T) {
	store := NewMetricsStore(5)
	store.Append(sampleAt(baseTime, 1))
	store.Append(sampleAt(baseTime.Add(-time.Minute), 2))

	all := store.Select(time.Time{}, 0)
	require.Len(t, all, 2)
	assert.Equal(t, baseTime, all[1].Timestamp)
	assert.Equal(t, float64(2), all[1].CPUUsage)
}

func TestMetricsStore_TiesKeepInsertionOrder(t *testing.T) {
	store := NewMetricsStore(5)
	store.Append(sampleAt(baseTime, 1))
	store.Append(sampleAt(baseTime, 2))
	store.Append(sampleAt(baseTime, 3))

	assert.Equal(t, []float64{1, 2, 3}, cpuValues(store.QueryRange(baseTime)))
}

func TestMetricsStore_Prune(t *testing.T) {
	now := baseTime.Add(48 * time.Hour)
	store := NewMetricsStore(10, WithStoreClock(func() time.Time { return now }))

	store.Append(sampleAt(now.Add(-30*time.Hour), 1))
	store.Append(sampleAt(now.Add(-25*time.Hour), 2))
	store.Append(sampleAt(now.Add(-24*time.Hour), 3))
	store.Append(sampleAt(now.Add(-time.Hour), 4))
	version := store.Version()

	removed := store.Prune(24 * time.Hour)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []float64{3, 4}, cpuValues(store.Select(time.Time{}, 0)))
	assert.NotEqual(t, version, store.Version())

	assert.Equal(t, 0, store.Prune(24*time.Hour))

	// Appends after a prune land behind the surviving samples.
	store.Append(sampleAt(now, 5))
	assert.Equal(t, []float64{3, 4, 5}, cpuValues(store.Select(time.Time{}, 0)))
}

func TestMetricsStore_PruneAfterWrap(t *testing.T) {
	now := baseTime.Add(time.Hour)
	store := NewMetricsStore(3, WithStoreClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*10*time.Minute), float64(i)))
	}
	// holds 2,3,4 at 20,30,40 minutes
	assert.Equal(t, 1, store.Prune(35*time.Minute))
	assert.Equal(t, []float64{3, 4}, cpuValues(store.Select(time.Time{}, 0)))

	assert.Equal(t, 2, store.Prune(0))
	assert.Equal(t, 0, store.Len())
}

func TestMetricsStore_AppendReturnsStoredSample(t *testing.T) {
	store := NewMetricsStore(5)
	store.Append(sampleAt(baseTime, 1))

	stored := store.Append(sampleAt(baseTime.Add(-time.Minute), 2))
	assert.Equal(t, baseTime, stored.Timestamp)
	assert.Equal(t, float64(2), stored.CPUUsage)

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, stored, latest)
}

func TestMetricsStore_Position(t *testing.T) {
	store := NewMetricsStore(5)
	for i := 0; i < 3; i++ {
		store.Append(sampleAt(baseTime.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	start, version := store.Position(baseTime.Add(30 * time.Second))
	assert.Equal(t, 1, start)
	assert.Equal(t, uint64(3), version)

	start, _ = store.Position(baseTime.Add(time.Hour))
	assert.Equal(t, 3, start)
}

func TestMetricsStore_ConcurrentReadersAndWriters(t *testing.T) {
	const capacity = 16
	now := baseTime
	var clockMu sync.Mutex
	store := NewMetricsStore(capacity, WithStoreClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}))

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			ts := baseTime.Add(time.Duration(i) * time.Second)
			store.Append(sampleAt(ts, float64(i)))
			if i%50 == 0 {
				clockMu.Lock()
				now = ts
				clockMu.Unlock()
				store.Prune(10 * time.Second)
			}
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				assert.LessOrEqual(t, store.Len(), store.Capacity())

				selected := store.Select(time.Time{}, 0)
				assert.LessOrEqual(t, len(selected), capacity)
				for i := 1; i < len(selected); i++ {
					assert.False(t, selected[i].Timestamp.Before(selected[i-1].Timestamp))
				}
				store.Latest()
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, store.Len(), capacity)
}
