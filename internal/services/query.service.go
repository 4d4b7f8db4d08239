package services

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"metricwatch/internal/models"
)

// QueryService answers current, history and stats queries against a MetricsStore.
type QueryService struct {
	store        *MetricsStore
	logger       zerolog.Logger
	now          func() time.Time
	hourlyBucket time.Duration
	dailyBucket  time.Duration
	maxResults   int
	cache        *ttlcache.Cache[string, []models.SystemMetricSample]
	cacheRunning bool
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithQueryClock overrides the clock used to compute range cutoffs.
func WithQueryClock(now func() time.Time) QueryOption {
	return func(q *QueryService) {
		q.now = now
	}
}

// WithBucketWidths sets the bucket width for hourly (1d, 1w) and daily (1M, 1y) ranges.
func WithBucketWidths(hourly, daily time.Duration) QueryOption {
	return func(q *QueryService) {
		if hourly > 0 {
			q.hourlyBucket = hourly
		}
		if daily > 0 {
			q.dailyBucket = daily
		}
	}
}

// WithMaxResults caps raw-mode results.
func WithMaxResults(n int) QueryOption {
	return func(q *QueryService) {
		if n > 0 {
			q.maxResults = n
		}
	}
}

// WithResultCache caches aggregated-mode results for ttl. Entries are keyed
// on the store version and the first sample inside the window, so an append,
// a prune or the cutoff moving past a sample all miss the cache.
func WithResultCache(ttl time.Duration) QueryOption {
	return func(q *QueryService) {
		if ttl <= 0 {
			return
		}
		q.cache = ttlcache.New(
			ttlcache.WithTTL[string, []models.SystemMetricSample](ttl),
			ttlcache.WithDisableTouchOnHit[string, []models.SystemMetricSample](),
			ttlcache.WithCapacity[string, []models.SystemMetricSample](uint64(2*len(models.AllRanges))),
		)
	}
}

func NewQueryService(store *MetricsStore, logger zerolog.Logger, opts ...QueryOption) *QueryService {
	q := &QueryService{
		store:        store,
		logger:       logger.With().Str("component", "query").Logger(),
		now:          time.Now,
		hourlyBucket: time.Hour,
		dailyBucket:  24 * time.Hour,
		maxResults:   MaxQueryResults,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start runs the cache expiry loop until Stop. A no-op without a cache.
func (q *QueryService) Start() {
	if q.cache != nil && !q.cacheRunning {
		q.cacheRunning = true
		go q.cache.Start()
	}
}

func (q *QueryService) Stop() {
	if q.cacheRunning {
		q.cache.Stop()
		q.cacheRunning = false
	}
}

// ResolveRange parses a duration query value, falling back to the default range.
func (q *QueryService) ResolveRange(raw string) models.TimeRange {
	r, ok := models.ParseTimeRange(raw)
	if !ok && raw != "" {
		q.logger.Debug().Str("duration", raw).Str("fallback", r.String()).Msg("Unknown duration, using default range")
	}
	return r
}

// Current returns the most recent sample, if any.
func (q *QueryService) Current() (models.SystemMetricSample, bool) {
	return q.store.Latest()
}

// Size returns the number of samples currently stored.
func (q *QueryService) Size() int {
	return q.store.Len()
}

// History returns raw samples (1m, 5m, 1h) or bucket averages (1d, 1w, 1M, 1y),
// newest first. It never returns nil.
func (q *QueryService) History(r models.TimeRange) []models.SystemMetricSample {
	if !r.Aggregated() {
		return reverse(q.selection(r))
	}

	if q.cache == nil {
		return reverse(Bucketize(q.selection(r), q.bucketWidth(r)))
	}

	cutoff := r.Cutoff(q.now())
	start, version := q.store.Position(cutoff)
	key := fmt.Sprintf("%s@%d/%d", r, version, start)
	if item := q.cache.Get(key); item != nil {
		return item.Value()
	}

	buckets := reverse(Bucketize(q.store.Select(cutoff, 0), q.bucketWidth(r)))
	q.cache.Set(key, buckets, ttlcache.DefaultTTL)
	return buckets
}

// Stats summarises the same sample set History reads for the range.
func (q *QueryService) Stats(r models.TimeRange) models.AggregatedStats {
	return ComputeStats(q.selection(r))
}

// selection returns the samples a range covers, oldest first. Raw ranges are
// capped to the most recent maxResults; aggregated ranges read everything in
// the window.
func (q *QueryService) selection(r models.TimeRange) []models.SystemMetricSample {
	cutoff := r.Cutoff(q.now())
	if r.Aggregated() {
		return q.store.Select(cutoff, 0)
	}
	return q.store.Select(cutoff, q.maxResults)
}

func (q *QueryService) bucketWidth(r models.TimeRange) time.Duration {
	if r.Daily() {
		return q.dailyBucket
	}
	return q.hourlyBucket
}

// Bucketize groups oldest-first samples into width-aligned buckets and
// averages every numeric field. The bucket timestamp is its start; empty
// buckets are not emitted.
func Bucketize(samples []models.SystemMetricSample, width time.Duration) []models.SystemMetricSample {
	buckets := make([]models.SystemMetricSample, 0)
	if len(samples) == 0 || width <= 0 {
		return buckets
	}

	var (
		acc   models.SystemMetricSample
		start time.Time
		count int
	)
	flush := func() {
		if count == 0 {
			return
		}
		buckets = append(buckets, averageOf(acc, start, count))
	}

	for _, s := range samples {
		bucketStart := s.Timestamp.Truncate(width)
		if count > 0 && !bucketStart.Equal(start) {
			flush()
			acc, count = models.SystemMetricSample{}, 0
		}
		start = bucketStart
		accumulate(&acc, s)
		count++
	}
	flush()
	return buckets
}

func accumulate(acc *models.SystemMetricSample, s models.SystemMetricSample) {
	acc.CPUUsage += s.CPUUsage
	acc.MemoryUsage += s.MemoryUsage
	acc.MemoryTotal += s.MemoryTotal
	acc.MemoryFree += s.MemoryFree
	acc.SwapUsage += s.SwapUsage
	acc.SwapTotal += s.SwapTotal
	acc.SwapFree += s.SwapFree
	acc.ProcessCPU += s.ProcessCPU
	acc.ProcessMemory += s.ProcessMemory
	acc.NetworkRx += s.NetworkRx
	acc.NetworkTx += s.NetworkTx
	acc.DiskUsage += s.DiskUsage
	acc.DiskTotal += s.DiskTotal
}

func averageOf(sum models.SystemMetricSample, start time.Time, count int) models.SystemMetricSample {
	n := float64(count)
	return models.SystemMetricSample{
		Timestamp:     start,
		CPUUsage:      sum.CPUUsage / n,
		MemoryUsage:   sum.MemoryUsage / n,
		MemoryTotal:   sum.MemoryTotal / n,
		MemoryFree:    sum.MemoryFree / n,
		SwapUsage:     sum.SwapUsage / n,
		SwapTotal:     sum.SwapTotal / n,
		SwapFree:      sum.SwapFree / n,
		ProcessCPU:    sum.ProcessCPU / n,
		ProcessMemory: sum.ProcessMemory / n,
		NetworkRx:     sum.NetworkRx / n,
		NetworkTx:     sum.NetworkTx / n,
		DiskUsage:     sum.DiskUsage / n,
		DiskTotal:     sum.DiskTotal / n,
		SampleCount:   count,
	}
}

// ComputeStats returns avg/min/max of cpu and memory plus network totals.
// An empty set yields all zeros.
func ComputeStats(samples []models.SystemMetricSample) models.AggregatedStats {
	var stats models.AggregatedStats
	if len(samples) == 0 {
		return stats
	}

	stats.MinCPU, stats.MaxCPU = samples[0].CPUUsage, samples[0].CPUUsage
	stats.MinMemory, stats.MaxMemory = samples[0].MemoryUsage, samples[0].MemoryUsage

	var cpuSum, memSum float64
	for _, s := range samples {
		cpuSum += s.CPUUsage
		memSum += s.MemoryUsage
		stats.MinCPU = min(stats.MinCPU, s.CPUUsage)
		stats.MaxCPU = max(stats.MaxCPU, s.CPUUsage)
		stats.MinMemory = min(stats.MinMemory, s.MemoryUsage)
		stats.MaxMemory = max(stats.MaxMemory, s.MemoryUsage)
		stats.TotalNetworkRx += s.NetworkRx
		stats.TotalNetworkTx += s.NetworkTx
	}

	n := float64(len(samples))
	stats.AvgCPU = cpuSum / n
	stats.AvgMemory = memSum / n
	return stats
}

func reverse(samples []models.SystemMetricSample) []models.SystemMetricSample {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples
}
