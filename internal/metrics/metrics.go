// Package metrics exposes queue state as Prometheus metrics. Lifecycle
// counters are fed by a manager event observer; gauges read the manager
// when scraped.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const namespace = "queuedl"

// Source is the part of queuelib.Manager the collectors read.
type Source interface {
	ActiveCount() int
	QueueLen() int
	IsPaused() bool
	Counts() (map[queuelib.Status]int, error)
	OnEvent(fn queuelib.EventFunc) (unsubscribe func())
}

// Metrics owns a private registry so several managers (tests) never clash
// on the global one.
type Metrics struct {
	reg         *prometheus.Registry
	events      *prometheus.CounterVec
	bytes       prometheus.Counter
	unsubscribe func()
}

// New registers the collectors for src and subscribes to its events.
func New(src Source, l logger.Logger) *Metrics {
	if l == nil {
		l = logger.NewNopLogger()
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Job lifecycle events by type.",
		}, []string{"type"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of completed downloads.",
		}),
	}
	m.reg.MustRegister(
		m.events,
		m.bytes,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_downloads",
			Help:      "Jobs currently owned by a worker.",
		}, func() float64 { return float64(src.ActiveCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Descriptors waiting in the in-memory queue.",
		}, func() float64 { return float64(src.QueueLen()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the queue is paused.",
		}, func() float64 {
			if src.IsPaused() {
				return 1
			}
			return 0
		}),
		&statusCollector{src: src, l: l},
		collectors.NewGoCollector(),
	)
	m.unsubscribe = src.OnEvent(m.observe)
	return m
}

func (m *Metrics) observe(ev queuelib.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == queuelib.EventDownloadCompleted && ev.Job != nil && ev.Job.DownloadedBytes > 0 {
		m.bytes.Add(float64(ev.Job.DownloadedBytes))
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Close stops observing events.
func (m *Metrics) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

var jobsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "jobs"),
	"Persisted jobs by status.",
	[]string{"status"}, nil,
)

// statusCollector reports persisted job counts at scrape time.
type statusCollector struct {
	src Source
	l   logger.Logger
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- jobsDesc
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.src.Counts()
	if err != nil {
		c.l.Warning("metrics: count jobs: %v", err)
		return
	}
	for _, s := range queuelib.Statuses() {
		ch <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
