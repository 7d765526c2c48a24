package observability

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metric names registered by NewMetricsManager
const (
	DockerRequestsTotal   = "docker_requests_total"
	DockerRequestDuration = "docker_request_duration_seconds"
	DockerResponseBytes   = "docker_response_bytes"
	HTTPRequestsTotal     = "http_requests_total"
	GoroutinesTotal       = "goroutines_total"
)

// MetricsManager handles metrics collection. A nil or disabled manager
// accepts every call and records nothing.
type MetricsManager struct {
	registry   *prometheus.Registry
	namespace  string
	enabled    bool
	mutex      sync.Mutex
	server     *http.Server
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(enabled bool, namespace string) *MetricsManager {
	mm := &MetricsManager{
		registry:   prometheus.NewRegistry(),
		namespace:  namespace,
		enabled:    enabled,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
	}

	if enabled {
		mm.initializeDefaultMetrics()
	}

	return mm
}

func (m *MetricsManager) initializeDefaultMetrics() {
	m.CreateCounter(DockerRequestsTotal, "Total count of Docker Engine API round trips", []string{"operation", "result"})

	m.CreateHistogram(
		DockerRequestDuration,
		"Duration of Docker Engine API round trips in seconds",
		[]string{"operation"},
		prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	)

	m.CreateSummary(
		DockerResponseBytes,
		"Size of raw Docker Engine API responses in bytes",
		[]string{"operation"},
		map[float64]float64{
			0.5:  0.05,
			0.9:  0.01,
			0.99: 0.001,
		},
	)

	m.CreateCounter(HTTPRequestsTotal, "Total count of served HTTP requests", []string{"route", "status"})
	m.CreateGauge(GoroutinesTotal, "Current number of goroutines", nil)
}

// Enabled reports whether metrics are collected
func (m *MetricsManager) Enabled() bool {
	return m != nil && m.enabled
}

// Handler returns the /metrics handler for the manager's registry
func (m *MetricsManager) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *MetricsManager) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer starts a standalone metrics HTTP server
func (m *MetricsManager) StartServer(addr string) error {
	if !m.Enabled() {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.server != nil {
		return fmt.Errorf("metrics server already running")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
	}

	go func(srv *http.Server) {
		log.Info().Str("addr", addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}(m.server)

	return nil
}

// StopServer stops the metrics HTTP server
func (m *MetricsManager) StopServer(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.server == nil {
		return nil
	}

	log.Info().Msg("Stopping metrics server")
	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}

	m.server = nil
	return nil
}

// CreateCounter creates a new counter metric
func (m *MetricsManager) CreateCounter(name, help string, labels []string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.counters[name]; exists {
		return
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to register counter metric")
		return
	}

	m.counters[name] = counter
}

// IncrementCounter increments a counter metric
func (m *MetricsManager) IncrementCounter(name string, value float64, labelValues ...string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	counter, exists := m.counters[name]
	m.mutex.Unlock()

	if !exists {
		log.Warn().Str("name", name).Msg("Counter not found")
		return
	}

	counter.WithLabelValues(labelValues...).Add(value)
}

// CreateGauge creates a new gauge metric
func (m *MetricsManager) CreateGauge(name, help string, labels []string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.gauges[name]; exists {
		return
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to register gauge metric")
		return
	}

	m.gauges[name] = gauge
}

// SetGauge sets a gauge metric
func (m *MetricsManager) SetGauge(name string, value float64, labelValues ...string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	gauge, exists := m.gauges[name]
	m.mutex.Unlock()

	if !exists {
		log.Warn().Str("name", name).Msg("Gauge not found")
		return
	}

	gauge.WithLabelValues(labelValues...).Set(value)
}

// CreateHistogram creates a new histogram metric
func (m *MetricsManager) CreateHistogram(name, help string, labels []string, buckets []float64) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.histograms[name]; exists {
		return
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to register histogram metric")
		return
	}

	m.histograms[name] = histogram
}

// ObserveHistogram adds an observation to a histogram
func (m *MetricsManager) ObserveHistogram(name string, value float64, labelValues ...string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	histogram, exists := m.histograms[name]
	m.mutex.Unlock()

	if !exists {
		log.Warn().Str("name", name).Msg("Histogram not found")
		return
	}

	histogram.WithLabelValues(labelValues...).Observe(value)
}

// CreateSummary creates a new summary metric
func (m *MetricsManager) CreateSummary(name, help string, labels []string, objectives map[float64]float64) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.summaries[name]; exists {
		return
	}

	summary := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  m.namespace,
			Name:       name,
			Help:       help,
			Objectives: objectives,
		},
		labels,
	)

	if err := m.registry.Register(summary); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to register summary metric")
		return
	}

	m.summaries[name] = summary
}

// ObserveSummary adds an observation to a summary
func (m *MetricsManager) ObserveSummary(name string, value float64, labelValues ...string) {
	if !m.Enabled() {
		return
	}

	m.mutex.Lock()
	summary, exists := m.summaries[name]
	m.mutex.Unlock()

	if !exists {
		log.Warn().Str("name", name).Msg("Summary not found")
		return
	}

	summary.WithLabelValues(labelValues...).Observe(value)
}

// RecordDockerRequest records one Engine API round trip
func (m *MetricsManager) RecordDockerRequest(operation, result string, duration time.Duration, responseBytes int) {
	if !m.Enabled() {
		return
	}

	m.IncrementCounter(DockerRequestsTotal, 1, operation, result)
	m.ObserveHistogram(DockerRequestDuration, duration.Seconds(), operation)
	m.ObserveSummary(DockerResponseBytes, float64(responseBytes), operation)
	m.SetGauge(GoroutinesTotal, float64(runtime.NumGoroutine()))
}

// RecordHTTPRequest records one request served by the route layer
func (m *MetricsManager) RecordHTTPRequest(route string, status int) {
	if !m.Enabled() {
		return
	}

	m.IncrementCounter(HTTPRequestsTotal, 1, route, fmt.Sprintf("%d", status))
}

// Close releases resources associated with metrics manager
func (m *MetricsManager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.StopServer(ctx)
}
