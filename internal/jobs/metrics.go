// Package jobmetrics instruments background task runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the per-job collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers against reg, or returns the process-wide instance on
// the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return defaultMetrics()
	}
	return register(reg)
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdesk_jobs_total",
			Help: "Task runs by job and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetdesk_job_duration_seconds",
			Help:    "Task run duration.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdesk_job_items_total",
			Help: "Units of work completed, such as warmed views or digests sent.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetdesk_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	return m
}

// Tracker times one run of a job.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job. A nil Metrics yields a no-op tracker.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	now := time.Now()
	t.metrics.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	if err != nil {
		t.metrics.runs.WithLabelValues(t.job, statusFailure).Inc()
		return err
	}
	t.metrics.runs.WithLabelValues(t.job, statusSuccess).Inc()
	t.metrics.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	return nil
}

// AddItems counts completed units of work; non-positive counts are ignored.
func (m *Metrics) AddItems(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(job).Add(float64(count))
}
