package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quorum_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	projectTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_project_transitions_total",
			Help: "Project state transitions by target status",
		},
		[]string{"status"},
	)

	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_notifications_dispatched_total",
			Help: "Notifications dispatched by type and final status",
		},
		[]string{"type", "status"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_deliveries_total",
			Help: "Channel delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	deliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quorum_delivery_latency_seconds",
			Help:    "Time spent in a channel adapter",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"channel"},
	)

	fanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_fanout_events_total",
			Help: "Fan-out events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	reminderPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_reminder_passes_total",
			Help: "Reminder passes by outcome",
		},
		[]string{"outcome"},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_reminders_sent_total",
			Help: "Projects stamped as reminded",
		},
	)

	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_circuit_breaker_rejections_total",
			Help: "Calls rejected by an open circuit breaker",
		},
		[]string{"breaker"},
	)

	sqsMessagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorum_sqs_messages_in_flight",
			Help: "Fan-out messages currently being handled from SQS",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_idempotency_hits_total",
			Help: "Accept requests replayed from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorum_db_connections_active",
			Help: "Acquired database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTransition records a project entering status
func RecordTransition(status string) {
	projectTransitions.WithLabelValues(status).Inc()
}

// RecordDispatch records a finalized notification
func RecordDispatch(notificationType, status string) {
	notificationsDispatched.WithLabelValues(notificationType, status).Inc()
}

// RecordDelivery records one channel attempt and its adapter latency
func RecordDelivery(channel, status string, latency time.Duration) {
	deliveriesTotal.WithLabelValues(channel, status).Inc()
	deliveryLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// RecordFanout records a fan-out event outcome ("ok" or "error")
func RecordFanout(kind, outcome string) {
	fanoutEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordReminderPass records a reminder pass outcome
func RecordReminderPass(outcome string) {
	reminderPasses.WithLabelValues(outcome).Inc()
}

// RecordReminderSent records a project stamped as reminded
func RecordReminderSent() {
	remindersSent.Inc()
}

// RecordBreakerRejection records a call rejected by an open breaker
func RecordBreakerRejection(breaker string) {
	breakerRejections.WithLabelValues(breaker).Inc()
}

// SetSQSMessagesInFlight sets the current in-flight message count
func SetSQSMessagesInFlight(count int) {
	sqsMessagesInFlight.Set(float64(count))
}

// RecordIdempotencyHit records a replayed accept
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// SetDBConnections sets acquired database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by the matched chi route
// pattern, so /v1/projects/{id} stays one series
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		RecordRequest(r.Method, route, wrapped.status, time.Since(start))
	})
}
