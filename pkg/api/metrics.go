package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/odvcencio/helmsman/pkg/errors"
)

// Metrics exposes the control-plane Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive     prometheus.GaugeFunc
	suggestionsPending prometheus.GaugeFunc
	authRejections     *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry so tests can
// create servers without collector collisions.
func NewMetrics(sessionCount, pendingCount func() int) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		sessionsActive: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "helmsman",
			Name:      "sessions_active",
			Help:      "Number of sessions with a selected repository.",
		}, func() float64 { return float64(sessionCount()) }),
		suggestionsPending: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "helmsman",
			Name:      "suggestions_pending",
			Help:      "Number of suggestions awaiting apply or reject.",
		}, func() float64 { return float64(pendingCount()) }),
		authRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helmsman",
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the authentication gate, by code.",
		}, []string{"code"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helmsman",
			Name:      "requests_total",
			Help:      "Authenticated requests served, by route.",
		}, []string{"route"}),
	}
}

// RecordRejection counts a gate rejection by error code.
func (m *Metrics) RecordRejection(code apperrors.ErrorCode) {
	m.authRejections.WithLabelValues(string(code)).Inc()
}

// RecordRequest counts a served request by route pattern.
func (m *Metrics) RecordRequest(route string) {
	m.requestsTotal.WithLabelValues(route).Inc()
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
