package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Manager handles all application metrics
type Manager struct {
	registry   *prometheus.Registry
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a metrics manager with its own registry, including Go runtime
// and process collectors
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Manager{
		registry:   registry,
		prometheus: NewPrometheusMetrics(registry),
		logger:     logrus.WithField("component", "metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// Registry returns the registry backing the metrics
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ErrorLog: m.logger})
}

// UpdateSystemMetrics refreshes metrics that are sampled rather than counted
func (m *Manager) UpdateSystemMetrics() {
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
