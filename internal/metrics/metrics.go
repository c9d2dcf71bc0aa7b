// Package metrics exposes the prometheus collectors recorded by checkout and the HTTP
// layer. Every method is safe on a nil receiver so callers can run without metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"nexuspos/internal/domain"
)

const namespace = "nexuspos"

// CheckoutMetrics records committed sales and fiscal sync outcomes.
type CheckoutMetrics struct {
	committed    *prometheus.CounterVec
	revenue      *prometheus.CounterVec
	syncOutcome  *prometheus.CounterVec
	syncDuration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_committed_total",
		Help:      "Committed checkouts by payment method.",
	}, []string{"method"})
	revenue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_revenue_total",
		Help:      "Committed sale totals, tax included, by payment method.",
	}, []string{"method"})
	syncOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fiscal_sync_total",
		Help:      "Fiscal sync attempts by outcome.",
	}, []string{"outcome"})
	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fiscal_sync_duration_seconds",
		Help:      "Duration of fiscal sync calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(committed, revenue, syncOutcome, syncDuration)
	return &CheckoutMetrics{
		committed:    committed,
		revenue:      revenue,
		syncOutcome:  syncOutcome,
		syncDuration: syncDuration,
	}
}

func (m *CheckoutMetrics) ObserveCommit(method domain.PaymentMethod, total decimal.Decimal) {
	if m == nil || m.committed == nil {
		return
	}
	label := normalizeLabel(string(method))
	m.committed.WithLabelValues(label).Inc()
	m.revenue.WithLabelValues(label).Add(total.InexactFloat64())
}

func (m *CheckoutMetrics) ObserveSync(outcome string, elapsed time.Duration) {
	if m == nil || m.syncOutcome == nil {
		return
	}
	m.syncOutcome.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
