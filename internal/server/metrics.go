package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the auth counters exposed on /metrics. Each Server carries
// its own registry so tests can build servers independently.
type Metrics struct {
	registry *prometheus.Registry

	logins      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	validations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "token_refreshes_total",
			Help:      "Refresh-token redemptions by result.",
		}, []string{"result"}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "token_validations_total",
			Help:      "Access-token validations by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(result string)       { m.logins.WithLabelValues(result).Inc() }
func (m *Metrics) Refresh(result string)     { m.refreshes.WithLabelValues(result).Inc() }
func (m *Metrics) Validation(outcome string) { m.validations.WithLabelValues(outcome).Inc() }
