package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records runs of the scheduled recovery jobs.
type CronJobMetrics struct {
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	recovered prometheus.Counter
}

// NewCronJobMetrics registers the cron metrics. A nil registerer yields a no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_cron_job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_cron_job_runs_total",
		Help: "Scheduled job executions, by job and result.",
	}, []string{"job", "result"})
	recovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receipt_recovered_units_total",
		Help: "Stale units re-enqueued for generation.",
	})
	reg.MustRegister(duration, runs, recovered)
	return &CronJobMetrics{
		duration:  duration,
		runs:      runs,
		recovered: recovered,
	}
}

// ObserveRun records the duration and result (ok, failed) of one job run.
func (c *CronJobMetrics) ObserveRun(job, result string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	c.runs.WithLabelValues(normalizeLabel(job), normalizeLabel(result)).Inc()
}

// AddRecovered counts units handed back to the retry topic.
func (c *CronJobMetrics) AddRecovered(n int) {
	if c == nil || c.recovered == nil || n <= 0 {
		return
	}
	c.recovered.Add(float64(n))
}
