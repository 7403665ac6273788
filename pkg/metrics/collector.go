package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zarrbench/zarrbench/pkg/models"
	"github.com/zarrbench/zarrbench/pkg/store"
	"github.com/zarrbench/zarrbench/pkg/worker"
)

// Collector exposes orchestration state as Prometheus metrics. Job counts and
// queue depth are read from the store and pool on every scrape; durations are
// recorded by the daemon as jobs finish.
type Collector struct {
	store     *store.MemoryStore
	pool      *worker.Pool
	startTime time.Time

	jobsByStatus *prometheus.Desc
	queueDepth   *prometheus.Desc
	uptime       *prometheus.Desc

	jobDuration *prometheus.HistogramVec
}

// NewCollector creates the collector over the given store and pool
func NewCollector(s *store.MemoryStore, p *worker.Pool) *Collector {
	return &Collector{
		store:     s,
		pool:      p,
		startTime: time.Now(),
		jobsByStatus: prometheus.NewDesc(
			"zarrbench_jobs_total",
			"Number of jobs by status",
			[]string{"status"}, nil,
		),
		queueDepth: prometheus.NewDesc(
			"zarrbench_queue_depth",
			"Number of jobs waiting for an execution slot",
			nil, nil,
		),
		uptime: prometheus.NewDesc(
			"zarrbench_uptime_seconds",
			"Server uptime in seconds",
			nil, nil,
		),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zarrbench_job_duration_seconds",
			Help:    "Benchmark execution duration from running to terminal",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"status"}),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
	ch <- c.queueDepth
	ch <- c.uptime
	c.jobDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for status, count := range c.store.CountsByStatus() {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue,
			float64(count), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue,
		float64(c.pool.QueueDepth()))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds())
	c.jobDuration.Collect(ch)
}

// ObserveJob records a terminal job's execution duration
func (c *Collector) ObserveJob(job *models.Job) {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return
	}
	c.jobDuration.WithLabelValues(string(job.Status)).
		Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
}

// Handler returns an HTTP handler serving the collector on its own registry,
// alongside the standard Go process metrics.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
