package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// registry: HTTP traffic, committed mutations, the broadcast hub, and
// the counter-clamp defect signal that backs the IntegrityViolation
// observability requirement.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	mutationsTotal *prometheus.CounterVec
	counterClamped prometheus.Counter

	broadcastTotal   *prometheus.CounterVec
	broadcastDropped *prometheus.CounterVec
	wsClients        prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	mutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_mutations_total",
		Help: "Committed registry mutations by entity and action",
	}, []string{"entity", "action"})

	counterClamped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_counter_clamped_total",
		Help: "Times an unresolved-comment counter would have gone negative and was clamped to zero",
	})

	broadcastTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_broadcast_events_total",
		Help: "Events fanned out to websocket subscribers",
	}, []string{"event_type"})

	broadcastDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_broadcast_dropped_total",
		Help: "Events dropped because the hub queue was saturated",
	}, []string{"event_type"})

	wsClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_ws_clients",
		Help: "Currently connected websocket clients",
	})

	registry.MustRegister(requestDuration, requestTotal, mutationsTotal, counterClamped, broadcastTotal, broadcastDropped, wsClients)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		mutationsTotal:   mutationsTotal,
		counterClamped:   counterClamped,
		broadcastTotal:   broadcastTotal,
		broadcastDropped: broadcastDropped,
		wsClients:        wsClients,
	}
}

// Handler exposes the /metrics scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// MutationCommitted counts one committed logical mutation.
func (s *MetricsService) MutationCommitted(entity, action string) {
	s.mutationsTotal.WithLabelValues(entity, action).Inc()
}

// CounterClamped flags one clamped unresolved-comment counter. This
// should stay at zero; any increase is a transition-bookkeeping defect.
func (s *MetricsService) CounterClamped() {
	s.counterClamped.Inc()
}

// EventBroadcast implements realtime.Metrics.
func (s *MetricsService) EventBroadcast(eventType string) {
	s.broadcastTotal.WithLabelValues(eventType).Inc()
}

// EventDropped implements realtime.Metrics.
func (s *MetricsService) EventDropped(eventType string) {
	s.broadcastDropped.WithLabelValues(eventType).Inc()
}

// ClientCount implements realtime.Metrics.
func (s *MetricsService) ClientCount(n int) {
	s.wsClients.Set(float64(n))
}
