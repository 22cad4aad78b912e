package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	variance *prometheus.GaugeVec
	purged   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// VarianceDigest is the ledger summary published by the digest job.
type VarianceDigest struct {
	Products      int
	Counted       int
	WithVariance  int
	AbsoluteUnits int64
}

// SetVarianceDigest publishes the latest digest as gauges.
func (m *Metrics) SetVarianceDigest(d VarianceDigest) {
	if m == nil {
		return
	}
	m.variance.WithLabelValues("products").Set(float64(d.Products))
	m.variance.WithLabelValues("counted").Set(float64(d.Counted))
	m.variance.WithLabelValues("with_variance").Set(float64(d.WithVariance))
	m.variance.WithLabelValues("absolute_units").Set(float64(d.AbsoluteUnits))
}

// AddPurgedKeys counts idempotency keys removed by cleanup.
func (m *Metrics) AddPurgedKeys(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rmadesk_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rmadesk_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rmadesk_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	variance := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rmadesk_stock_variance_digest",
		Help: "Latest stock ledger digest: products, counted, with_variance, absolute_units.",
	}, []string{"measure"})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rmadesk_idempotency_keys_purged_total",
		Help: "Idempotency keys removed by the retention cleanup.",
	})
	registerer.MustRegister(runs, failures, duration, variance, purged)
	return &Metrics{runs: runs, failures: failures, duration: duration, variance: variance, purged: purged}
}
