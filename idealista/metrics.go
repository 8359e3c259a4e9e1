package idealista

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// Metrics bundles Prometheus collectors for the job.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ListingsFetched   prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	AvgPricePerSqm    *prometheus.GaugeVec
	ListingsUsed      *prometheus.GaugeVec
	LastSuccess       prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idealista_requests_total",
			Help: "Total HTTP requests issued to the idealista API.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idealista_request_duration_seconds",
			Help:    "HTTP request latency for idealista API requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	listings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idealista_listings_fetched_total",
			Help: "Total number of listings received from search pages.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idealista_duplicate_listings_total",
			Help: "Listings dropped because their property code was already seen.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idealista_errors_total",
			Help: "Total number of API errors by type.",
		},
		[]string{"error_type"},
	)
	avgPrice := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idealista_avg_price_per_sqm",
			Help: "Average price per square meter computed in the last run.",
		},
		[]string{"location"},
	)
	used := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idealista_listings_used",
			Help: "Listings with a positive size used for the average.",
		},
		[]string{"location"},
	)
	lastSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "idealista_last_success_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		},
	)

	registry.MustRegister(requests, requestDuration, listings, duplicates, errorsTotal, avgPrice, used, lastSuccess)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ListingsFetched:   listings,
		DuplicatesSkipped: duplicates,
		ErrorsTotal:       errorsTotal,
		AvgPricePerSqm:    avgPrice,
		ListingsUsed:      used,
		LastSuccess:       lastSuccess,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddListings increments the fetched listings counter.
func (m *Metrics) AddListings(n int) {
	if m == nil {
		return
	}
	m.ListingsFetched.Add(float64(n))
}

// IncDuplicate increments the duplicate listings counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesSkipped.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveSummary exports the aggregated values of a summary row.
func (m *Metrics) ObserveSummary(row *models.SummaryRow) {
	if m == nil || row == nil {
		return
	}
	m.AvgPricePerSqm.WithLabelValues(row.Location).Set(row.AvgPricePerSqm)
	m.ListingsUsed.WithLabelValues(row.Location).Set(float64(row.NumFlats))
}

// MarkSuccess sets the last success gauge to t.
func (m *Metrics) MarkSuccess(t time.Time) {
	if m == nil {
		return
	}
	m.LastSuccess.Set(float64(t.Unix()))
}

// Push sends the registry to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
