// Package metrics exposes Prometheus collectors for the session lifecycle
// and API traffic.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes
const (
	RefreshSuccess   = "success"
	RefreshFailure   = "failure"
	RefreshSkipped   = "skipped"
	RefreshDiscarded = "discarded"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	refreshes     *prometheus.CounterVec
	responses     *prometheus.CounterVec
	invalidations prometheus.Counter
	redirects     prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockpile",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockpile",
			Subsystem: "api",
			Name:      "responses_total",
			Help:      "Authenticated API responses by method and status code.",
		}, []string{"method", "code"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockpile",
			Subsystem: "session",
			Name:      "invalidations_total",
			Help:      "Sessions cleared because the API rejected the current credential.",
		}),
		redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockpile",
			Name:      "login_redirects_total",
			Help:      "Forced navigations to the login entry point.",
		}),
	}

	m.registry.MustRegister(m.refreshes, m.responses, m.invalidations, m.redirects)
	return m
}

// Refresh counts a refresh attempt with the given outcome
func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// Response counts an authenticated API response
func (m *Metrics) Response(method string, code int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Invalidation counts a session cleared by a 401
func (m *Metrics) Invalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

// Redirect counts a forced navigation to login
func (m *Metrics) Redirect() {
	if m == nil {
		return
	}
	m.redirects.Inc()
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
