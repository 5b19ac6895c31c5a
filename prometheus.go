package postings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports index metrics through client_golang.
type PrometheusCollector struct {
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	entries     *prometheus.CounterVec
	pages       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	results     prometheus.Histogram
	ckptBytes   prometheus.Gauge
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers it with reg.
// A nil reg selects prometheus.DefaultRegisterer.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of index operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed index operations.",
		}, []string{"op"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Posting entries changed by commits.",
		}, []string{"change"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages allocated and freed by commits.",
		}, []string{"change"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "representation_changes_total",
			Help:      "Terms that changed representation.",
		}, []string{"change"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of results per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		ckptBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_bytes",
			Help:      "Stored size of the last checkpoint.",
		}),
	}
	for _, col := range []prometheus.Collector{c.latency, c.errors, c.entries, c.pages, c.transitions, c.results, c.ckptBytes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) observe(op string, d time.Duration, err error) {
	c.latency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.errors.WithLabelValues(op).Inc()
	}
}

// RecordCommit implements MetricsCollector.
func (c *PrometheusCollector) RecordCommit(stats CommitStats, d time.Duration, err error) {
	c.observe("commit", d, err)
	if err != nil {
		return
	}
	c.entries.WithLabelValues("added").Add(float64(stats.Added))
	c.entries.WithLabelValues("removed").Add(float64(stats.Removed))
	c.pages.WithLabelValues("allocated").Add(float64(stats.PagesAllocated))
	c.pages.WithLabelValues("freed").Add(float64(stats.PagesFreed))
	c.transitions.WithLabelValues("promoted").Add(float64(stats.Promoted))
	c.transitions.WithLabelValues("demoted").Add(float64(stats.Demoted))
	c.transitions.WithLabelValues("dropped").Add(float64(stats.Dropped))
}

// RecordQuery implements MetricsCollector.
func (c *PrometheusCollector) RecordQuery(_, results int, d time.Duration, err error) {
	c.observe("query", d, err)
	if err == nil {
		c.results.Observe(float64(results))
	}
}

// RecordCheckpoint implements MetricsCollector.
func (c *PrometheusCollector) RecordCheckpoint(bytes int64, d time.Duration, err error) {
	c.observe("checkpoint", d, err)
	if err == nil {
		c.ckptBytes.Set(float64(bytes))
	}
}

// RecordRestore implements MetricsCollector.
func (c *PrometheusCollector) RecordRestore(d time.Duration, err error) {
	c.observe("restore", d, err)
}
