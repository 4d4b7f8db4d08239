package services

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var histogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}

// Telemetry holds the service's own Prometheus metrics. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	Registry *prometheus.Registry

	samplesTotal     prometheus.Counter
	samplingFailures prometheus.Counter
	prunedTotal      prometheus.Counter
	requestTotal     *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	rateLimitHits    *prometheus.CounterVec
}

// NewTelemetry registers collectors on a fresh registry, including a gauge
// that reports the store's current length.
func NewTelemetry(store *MetricsStore) *Telemetry {
	t := &Telemetry{
		Registry: prometheus.NewRegistry(),
		samplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricwatch",
			Subsystem: "sampler",
			Name:      "samples_total",
			Help:      "Samples appended to the store",
		}),
		samplingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricwatch",
			Subsystem: "sampler",
			Name:      "failures_total",
			Help:      "Sampling ticks skipped because a required reading failed",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricwatch",
			Subsystem: "store",
			Name:      "pruned_samples_total",
			Help:      "Samples removed by the retention job",
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metricwatch",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metricwatch",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metricwatch",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"}),
	}

	storeSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "metricwatch",
		Subsystem: "store",
		Name:      "samples",
		Help:      "Samples currently held in memory",
	}, func() float64 { return float64(store.Len()) })

	t.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		storeSize,
		t.samplesTotal,
		t.samplingFailures,
		t.prunedTotal,
		t.requestTotal,
		t.requestLatency,
		t.rateLimitHits,
	)
	return t
}

func (t *Telemetry) sampled() {
	if t != nil {
		t.samplesTotal.Inc()
	}
}

func (t *Telemetry) samplingFailed() {
	if t != nil {
		t.samplingFailures.Inc()
	}
}

func (t *Telemetry) pruned(n int) {
	if t != nil {
		t.prunedTotal.Add(float64(n))
	}
}

// ObserveRequest records one handled HTTP request.
func (t *Telemetry) ObserveRequest(method, route string, status int, duration time.Duration) {
	if t == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	t.requestTotal.With(labels).Inc()
	t.requestLatency.With(labels).Observe(duration.Seconds())
}

// ObserveRateLimitHit records one rejected request.
func (t *Telemetry) ObserveRateLimitHit(route string) {
	if t != nil {
		t.rateLimitHits.With(prometheus.Labels{"route": route}).Inc()
	}
}
