package services

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"

	"metricwatch/internal/models"
)

const (
	DefaultSampleInterval = 10 * time.Second
	DefaultPruneInterval  = 24 * time.Hour
	DefaultRetention      = 24 * time.Hour
)

// Publisher receives every sample right after it is stored.
type Publisher interface {
	Publish(sample models.SystemMetricSample)
}

// Scheduler drives the sampler and the retention job on fixed cadences.
type Scheduler struct {
	sampler   *Sampler
	store     *MetricsStore
	logger    zerolog.Logger
	publisher Publisher
	telemetry *Telemetry

	sampleInterval time.Duration
	sampleTimeout  time.Duration
	pruneInterval  time.Duration
	retention      time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithSampleInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.sampleInterval = d
		}
	}
}

// WithSampleTimeout bounds a single tick's host reads. Defaults to the sample interval.
func WithSampleTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.sampleTimeout = d
		}
	}
}

func WithPruneInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pruneInterval = d
		}
	}
}

func WithRetention(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithPublisher(p Publisher) SchedulerOption {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

func WithTelemetry(t *Telemetry) SchedulerOption {
	return func(s *Scheduler) {
		s.telemetry = t
	}
}

func NewScheduler(sampler *Sampler, store *MetricsStore, logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sampler:        sampler,
		store:          store,
		logger:         logger.With().Str("component", "scheduler").Logger(),
		sampleInterval: DefaultSampleInterval,
		pruneInterval:  DefaultPruneInterval,
		retention:      DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sampleTimeout == 0 {
		s.sampleTimeout = s.sampleInterval
	}
	return s
}

// Start takes one sample immediately and then launches the sampling and
// pruning loops. It returns without blocking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(2)
	go s.sampleLoop(ctx)
	go s.pruneLoop(ctx)

	s.logger.Info().
		Dur("sample_interval", s.sampleInterval).
		Dur("prune_interval", s.pruneInterval).
		Dur("retention", s.retention).
		Msg("Scheduler started")
	return nil
}

// Stop cancels both loops and waits for them to exit. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) sampleLoop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	ticker := time.NewTicker(s.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) pruneLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one sampling pass. Errors and panics stay inside the tick.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Sampling tick panicked")
			s.telemetry.samplingFailed()
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, s.sampleTimeout)
	defer cancel()

	// host reads happen before the store lock is taken
	sample, err := s.sampler.Sample(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("Skipping sample")
		s.telemetry.samplingFailed()
		return
	}

	sample = s.store.Append(sample)
	s.telemetry.sampled()

	if s.publisher != nil {
		s.publisher.Publish(sample)
	}
	s.logger.Debug().
		Float64("cpu_usage", sample.CPUUsage).
		Float64("memory_usage", sample.MemoryUsage).
		Int("stored", s.store.Len()).
		Msg("Sample stored")
}

func (s *Scheduler) prune() {
	removed := s.store.Prune(s.retention)
	s.telemetry.pruned(removed)
	s.logger.Info().Int("removed", removed).Int("remaining", s.store.Len()).Msg("Retention prune completed")
}
