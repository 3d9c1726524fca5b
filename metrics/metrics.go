// Package metrics exposes Prometheus collectors for an export run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the export.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	PagesScrapedTotal   prometheus.Counter
	OrdersCollected     prometheus.Counter
	RecordsSkippedTotal *prometheus.CounterVec
	DetailFetchesTotal  *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	Progress            prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexport_requests_total",
			Help: "Total HTTP requests issued, by kind.",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderexport_request_duration_seconds",
			Help:    "HTTP request latency by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderexport_pages_scraped_total",
			Help: "Listing pages run through the extractor.",
		},
	)
	orders := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderexport_orders_collected_total",
			Help: "Orders added to the continuation record.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexport_records_skipped_total",
			Help: "Order containers dropped during extraction, by reason.",
		},
		[]string{"reason"},
	)
	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexport_detail_fetches_total",
			Help: "Detail page fetches by result.",
		},
		[]string{"result"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexport_errors_total",
			Help: "Request errors by type.",
		},
		[]string{"error_type"},
	)
	progress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderexport_progress_percent",
			Help: "Last reported export progress.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, orders, skipped, fetches, errorsTotal, progress)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		PagesScrapedTotal:   pages,
		OrdersCollected:     orders,
		RecordsSkippedTotal: skipped,
		DetailFetchesTotal:  fetches,
		ErrorsTotal:         errorsTotal,
		Progress:            progress,
	}
}

// IncRequest increments the requests counter for kind.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records a request duration for kind.
func (m *Metrics) ObserveDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncPages increments the scraped pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesScrapedTotal.Inc()
}

// AddOrders adds n collected orders.
func (m *Metrics) AddOrders(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrdersCollected.Add(float64(n))
}

// IncSkipped increments the skipped records counter for reason.
func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkippedTotal.WithLabelValues(reason).Inc()
}

// IncDetailFetch increments the detail fetch counter for result.
func (m *Metrics) IncDetailFetch(result string) {
	if m == nil {
		return
	}
	m.DetailFetchesTotal.WithLabelValues(result).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetProgress records the last progress percentage.
func (m *Metrics) SetProgress(percent int) {
	if m == nil {
		return
	}
	m.Progress.Set(float64(percent))
}
