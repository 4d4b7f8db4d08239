package services

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"

	"metricwatch/internal/models"
)

// ErrSamplingFailed marks a tick where a required host reading could not be taken.
const ErrSamplingFailed = errors.Sentinel("sampling failed")

// SamplingError reports which required reading failed.
type SamplingError struct {
	Reading string
	Err     error
}

func (e *SamplingError) Error() string {
	return ErrSamplingFailed.Error() + ": " + e.Reading + ": " + e.Err.Error()
}

func (e *SamplingError) Unwrap() error {
	return e.Err
}

func (e *SamplingError) Is(target error) bool {
	return target == ErrSamplingFailed
}

// networkBaseline is the previous cumulative counter reading.
type networkBaseline struct {
	rx, tx uint64
	at     time.Time
	valid  bool
}

// Sampler turns host readings into SystemMetricSamples.
// It keeps the previous network counters and must only be driven from one goroutine.
type Sampler struct {
	reader   HostReader
	logger   zerolog.Logger
	now      func() time.Time
	baseline networkBaseline
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithSamplerClock overrides the clock used to timestamp samples.
func WithSamplerClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		s.now = now
	}
}

func NewSampler(reader HostReader, logger zerolog.Logger, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		reader: reader,
		logger: logger.With().Str("component", "sampler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample reads the host once. CPU and memory are required; a failure there
// returns a *SamplingError matching ErrSamplingFailed and no sample. Every other
// reading falls back to zero when unavailable.
func (s *Sampler) Sample(ctx context.Context) (models.SystemMetricSample, error) {
	cpuPercent, err := s.reader.CPUPercent(ctx)
	if err != nil {
		return models.SystemMetricSample{}, &SamplingError{Reading: "cpu", Err: err}
	}
	memory, err := s.reader.VirtualMemory(ctx)
	if err != nil {
		return models.SystemMetricSample{}, &SamplingError{Reading: "memory", Err: err}
	}

	sample := models.SystemMetricSample{
		Timestamp:   s.now(),
		CPUUsage:    cpuPercent,
		MemoryUsage: memory.UsedPercent,
		MemoryTotal: float64(memory.Total),
		MemoryFree:  float64(memory.Free),
	}

	if swap, err := s.reader.SwapMemory(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Swap reading unavailable")
	} else {
		sample.SwapUsage = swap.UsedPercent
		sample.SwapTotal = float64(swap.Total)
		sample.SwapFree = float64(swap.Free)
	}

	if diskReading, err := s.reader.DiskUsage(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Disk reading unavailable")
	} else {
		sample.DiskUsage = diskReading.UsedPercent
		sample.DiskTotal = float64(diskReading.Total)
	}

	if counters, err := s.reader.NetworkCounters(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Network reading unavailable")
	} else {
		sample.NetworkRx, sample.NetworkTx = s.networkRates(counters, sample.Timestamp)
	}

	if proc, err := s.reader.Process(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Process reading unavailable")
	} else {
		sample.ProcessCPU = proc.CPUPercent
		sample.ProcessMemory = float64(proc.RSS)
	}

	return sample.Normalize(), nil
}

// networkRates converts cumulative counters into bytes/sec against the
// previous baseline and then moves the baseline forward. The first call, a
// non-positive interval, or a counter that went backwards all yield 0.
func (s *Sampler) networkRates(counters NetworkCounters, at time.Time) (rx, tx float64) {
	prev := s.baseline
	s.baseline = networkBaseline{rx: counters.BytesRecv, tx: counters.BytesSent, at: at, valid: true}

	if !prev.valid {
		return 0, 0
	}
	elapsed := at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	return counterRate(prev.rx, counters.BytesRecv, elapsed), counterRate(prev.tx, counters.BytesSent, elapsed)
}

func counterRate(previous, current uint64, elapsedSeconds float64) float64 {
	if current < previous {
		return 0
	}
	return float64(current-previous) / elapsedSeconds
}
