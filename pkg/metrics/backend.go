package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendCallMetrics records latency and outcome of remote storefront API calls.
type BackendCallMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewBackendCallMetrics registers the backend call metrics on the provided registerer.
func NewBackendCallMetrics(reg prometheus.Registerer) *BackendCallMetrics {
	if reg == nil {
		return &BackendCallMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_call_duration_seconds",
		Help:    "Duration of remote storefront API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_call_success",
		Help: "Successful remote storefront API calls.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_call_failure",
		Help: "Failed remote storefront API calls.",
	}, []string{"operation", "code"})
	reg.MustRegister(duration, success, failure)
	return &BackendCallMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records how long an operation took.
func (m *BackendCallMetrics) ObserveDuration(operation string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordSuccess bumps the success counter for an operation.
func (m *BackendCallMetrics) RecordSuccess(operation string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(operation).Inc()
}

// RecordFailure bumps the failure counter for an operation and error code.
func (m *BackendCallMetrics) RecordFailure(operation, code string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(operation, code).Inc()
}

// CheckoutMetrics counts checkout flows by terminal outcome.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewCheckoutMetrics registers checkout outcome counters.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes",
		Help: "Checkout flows by terminal outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &CheckoutMetrics{outcomes: outcomes}
}

// RecordOutcome bumps the counter for a terminal checkout state.
func (m *CheckoutMetrics) RecordOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
