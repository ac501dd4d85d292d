// Package metrics exposes Prometheus collectors for the budget store and the
// HTTP layer. Each Metrics value owns its own registry so tests and multiple
// stores in one process do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartbudget"

// Persist outcomes.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	registry     *prometheus.Registry
	mutations    *prometheus.CounterVec
	persists     *prometheus.CounterVec
	transactions prometheus.Gauge
	versions     *prometheus.GaugeVec
	published    *prometheus.CounterVec
	requests     *prometheus.HistogramVec
	rejected     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Applied store mutations by operation.",
		}, []string{"operation"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Document persistence attempts by document and result.",
		}, []string{"document", "result"}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions",
			Help:      "Transactions currently held in memory.",
		}),
		versions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_version",
			Help:      "Store version counters (current, attempted, durable).",
		}, []string{"kind"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Change events forwarded to the broker by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_flagged_total",
			Help:      "Requests rate limited or flagged as suspicious, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations, m.persists, m.transactions, m.versions, m.published, m.requests, m.rejected,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The methods below accept a nil receiver so components can run without
// metrics.

func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) Persist(document string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.persists.WithLabelValues(document, result).Inc()
}

func (m *Metrics) SetTransactions(n int) {
	if m == nil {
		return
	}
	m.transactions.Set(float64(n))
}

func (m *Metrics) SetVersions(current, attempted, durable uint64) {
	if m == nil {
		return
	}
	m.versions.WithLabelValues("current").Set(float64(current))
	m.versions.WithLabelValues("attempted").Set(float64(attempted))
	m.versions.WithLabelValues("durable").Set(float64(durable))
}

func (m *Metrics) Published(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Observe(d.Seconds())
}

// Flagged counts a request that was rate limited or looked suspicious.
func (m *Metrics) Flagged(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
