package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	LoginsInitiatedTotal prometheus.Counter
	CallbacksTotal       *prometheus.CounterVec
	LoginFailuresTotal   *prometheus.CounterVec
	ReplaysRejectedTotal prometheus.Counter

	// Identity metrics
	UsersProvisionedTotal prometheus.Counter
	ResolveDuration       prometheus.Histogram

	// Token metrics
	TokensIssuedTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samlbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "samlbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsInitiatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_logins_initiated_total",
				Help: "Total number of login redirects issued to the IdP",
			},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samlbridge_callbacks_total",
				Help: "Total number of SAML callback posts by outcome",
			},
			[]string{"outcome"},
		),
		LoginFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samlbridge_login_failures_total",
				Help: "Total number of failed logins by stage",
			},
			[]string{"stage"},
		),
		ReplaysRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_replays_rejected_total",
				Help: "Total number of callbacks rejected for replaying an assertion",
			},
		),

		UsersProvisionedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_users_provisioned_total",
				Help: "Total number of users created on first login",
			},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "samlbridge_resolve_duration_seconds",
				Help:    "User resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_tokens_issued_total",
				Help: "Total number of session tokens minted",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "samlbridge_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "samlbridge_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsInitiatedTotal,
		m.CallbacksTotal,
		m.LoginFailuresTotal,
		m.ReplaysRejectedTotal,
		m.UsersProvisionedTotal,
		m.ResolveDuration,
		m.TokensIssuedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
