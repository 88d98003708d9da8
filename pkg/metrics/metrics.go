package metrics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// Admin HTTP metrics, for the metrics/health surface itself
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5gate_admin_http_requests_total",
			Help: "Total number of requests to the admin HTTP surface",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socks5gate_admin_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SOCKS5 connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socks5gate_active_connections",
			Help: "Number of SOCKS5 connections currently open, from accept to close",
		},
	)

	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5gate_connections_total",
			Help: "Total number of SOCKS5 connections, by terminal reply code",
		},
		[]string{"result"},
	)

	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5gate_bytes_transferred_total",
			Help: "Total bytes relayed, by direction",
		},
		[]string{"direction"},
	)

	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socks5gate_connection_duration_seconds",
			Help:    "Total lifetime of a SOCKS5 connection, from accept to close",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600},
		},
	)

	HandshakeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socks5gate_handshake_duration_seconds",
			Help:    "Time from accept to the authentication outcome (username/password result or no acceptable method)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Authentication metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5gate_auth_attempts_total",
			Help: "Total number of authentication outcomes (username/password sub-negotiations and no-acceptable-method rejections), by result",
		},
		[]string{"result"},
	)

	// Upstream dial metrics
	DialAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5gate_dial_attempts_total",
			Help: "Total number of upstream dial attempts, by outcome",
		},
		[]string{"result"},
	)
)

// PrometheusHandler returns a Fiber handler for Prometheus metrics
func PrometheusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	}
}

// RecordHTTPMetrics is Fiber middleware that records request count and
// latency for the admin HTTP surface.
func RecordHTTPMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Method(), c.Path()))
		defer start.ObserveDuration()

		err := c.Next()

		status := c.Response().StatusCode()
		HTTPRequestsTotal.WithLabelValues(c.Method(), c.Path(), strconv.Itoa(status)).Inc()

		return err
	}
}
