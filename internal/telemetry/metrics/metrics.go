// Package metrics exposes the service's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "courseman"

// Registry owns every collector. All methods are safe on a nil *Registry so
// components can be constructed without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	allocAttempts       *prometheus.HistogramVec
	allocExhausted      *prometheus.CounterVec
	verifyOutcomes      *prometheus.CounterVec
	permissionDecisions *prometheus.CounterVec
	sessionsSwept       prometheus.Counter
	rateLimited         *prometheus.CounterVec
}

// NewRegistry creates the collectors and registers them, plus Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		allocAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identifier",
			Name:      "allocation_attempts",
			Help:      "Candidates generated per successful allocation.",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}, []string{"scope"}),
		allocExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identifier",
			Name:      "allocation_exhausted_total",
			Help:      "Allocations that ran out of attempts.",
		}, []string{"scope"}),
		verifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "verify_outcomes_total",
			Help:      "Token verification results by outcome.",
		}, []string{"outcome"}),
		permissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "check_decisions_total",
			Help:      "Edit permission checks by decision.",
		}, []string{"decision"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "expired_deleted_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client limiter.",
		}, []string{"route"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.allocAttempts,
		r.allocExhausted,
		r.verifyOutcomes,
		r.permissionDecisions,
		r.sessionsSwept,
		r.rateLimited,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (r *Registry) ObserveAllocation(scope string, attempts int) {
	if r == nil {
		return
	}
	r.allocAttempts.WithLabelValues(scope).Observe(float64(attempts))
}

func (r *Registry) AllocationExhausted(scope string) {
	if r == nil {
		return
	}
	r.allocExhausted.WithLabelValues(scope).Inc()
}

func (r *Registry) VerifyOutcome(outcome string) {
	if r == nil {
		return
	}
	r.verifyOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) PermissionDecision(decision string) {
	if r == nil {
		return
	}
	r.permissionDecisions.WithLabelValues(decision).Inc()
}

func (r *Registry) SessionsSwept(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.sessionsSwept.Add(float64(n))
}

func (r *Registry) RateLimited(route string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(route).Inc()
}
