package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts gateway HTTP requests by route, method, and
	// status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// MessagesPublishedTotal counts broker publishes by topic and backend.
	MessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"topic", "backend"},
	)
	// MessagesProcessing is a gauge of in-flight handler invocations by
	// stage.
	MessagesProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messages_processing",
			Help: "Number of messages currently being handled",
		},
		[]string{"stage"},
	)
	// MessagesCompletedTotal counts successfully handled messages by stage.
	MessagesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_completed_total",
			Help: "Total number of messages handled successfully",
		},
		[]string{"stage"},
	)
	// MessagesFailedTotal counts handler failures by stage.
	MessagesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_failed_total",
			Help: "Total number of message handler failures",
		},
		[]string{"stage"},
	)
	// MessagesRedeliveredTotal is a counter of redelivered messages by
	// backend. It is registered, but no consumer in this module increments
	// it.
	MessagesRedeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_redelivered_total",
			Help: "Total number of redelivered messages observed",
		},
		[]string{"backend"},
	)

	// ProviderRequestsTotal counts outbound calls to the target model
	// provider and the judge service.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of provider/judge requests",
		},
		[]string{"provider", "operation"},
	)
	// ProviderRequestDuration records durations of provider/judge requests.
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Provider/judge request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// JudgeScoreHistogram is the distribution of judge scores observed.
	JudgeScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judge_score",
			Help:    "Distribution of judge scores",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// CircuitBreakerStatus tracks circuit breaker state per guarded
	// dependency.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service"},
	)

	// VisibilityExtensionsTotal counts visibility-timeout extensions issued
	// by the queue-backend consumer's extender goroutine.
	VisibilityExtensionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visibility_extensions_total",
			Help: "Total number of visibility timeout extensions issued",
		},
		[]string{"queue"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MessagesPublishedTotal,
		MessagesProcessing,
		MessagesCompletedTotal,
		MessagesFailedTotal,
		MessagesRedeliveredTotal,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		JudgeScoreHistogram,
		CircuitBreakerStatus,
		VisibilityExtensionsTotal,
	)
}

// HTTPMetricsMiddleware records Prometheus metrics for each gateway request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// StartProcessing increments the processing gauge for the given stage.
func StartProcessing(stage string) { MessagesProcessing.WithLabelValues(stage).Inc() }

// CompleteProcessing marks a message handled successfully.
func CompleteProcessing(stage string) {
	MessagesProcessing.WithLabelValues(stage).Dec()
	MessagesCompletedTotal.WithLabelValues(stage).Inc()
}

// FailProcessing marks a message handler failure.
func FailProcessing(stage string) {
	MessagesProcessing.WithLabelValues(stage).Dec()
	MessagesFailedTotal.WithLabelValues(stage).Inc()
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(service string, status int) {
	CircuitBreakerStatus.WithLabelValues(service).Set(float64(status))
}
