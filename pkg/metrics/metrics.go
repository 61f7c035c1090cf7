// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for mhttp.
package metrics

import (
	"errors"
	"io"
	"time"

	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name when no namespace is given.
const DefaultNamespace = "mhttp"

// Metrics holds all Prometheus metrics for mhttp.
type Metrics struct {
	// Connection metrics
	ActiveConnections  *prometheus.GaugeVec
	TotalConnections   *prometheus.CounterVec
	ConnectionErrors   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec

	// Message metrics
	MessagesTotal   *prometheus.CounterVec
	MessageSize     *prometheus.HistogramVec
	ParseErrors     *prometheus.CounterVec
	RejectedTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Backend metrics
	BackendErrors            *prometheus.CounterVec
	BackendActiveConnections *prometheus.GaugeVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedRequests *prometheus.CounterVec

	// Resource metrics
	GoroutinesActive *prometheus.GaugeVec
	MemoryAllocated  *prometheus.GaugeVec

	// Auth metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec
}

// New creates a Metrics instance registered with the default registerer.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Metrics instance registered with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 8)

	return &Metrics{
		ActiveConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
			[]string{"type"},
		),
		TotalConnections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of connections",
			},
			[]string{"type", "status"},
		),
		ConnectionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_errors_total",
				Help:      "Total number of connection errors",
			},
			[]string{"type", "error_type"},
		),
		ConnectionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"type"},
		),
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of HTTP messages parsed, by method or status code",
			},
			[]string{"direction", "kind"},
		),
		MessageSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_size_bytes",
				Help:      "Size of parsed HTTP messages in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"direction"},
		),
		ParseErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_errors_total",
				Help:      "Total number of messages that failed to parse",
			},
			[]string{"direction", "reason"},
		),
		RejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_total",
				Help:      "Total number of client requests answered by the proxy",
			},
			[]string{"status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BackendErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend errors",
			},
			[]string{"backend", "error_type"},
		),
		BackendActiveConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_active_connections",
				Help:      "Number of active backend connections",
			},
			[]string{"backend"},
		),
		CircuitBreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"backend"},
		),
		CircuitBreakerTrips: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"backend"},
		),
		RateLimitedRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"limiter_type"},
		),
		GoroutinesActive: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of active goroutines by component",
			},
			[]string{"component"},
		),
		MemoryAllocated: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_allocated_bytes",
				Help:      "Memory allocated in bytes",
			},
			[]string{"type"},
		),
		AuthAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"type"},
		),
		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"type", "reason"},
		),
	}
}

// ObserveConnection tracks a connection lifecycle.
func (m *Metrics) ObserveConnection(connType string, f func() error) error {
	m.ActiveConnections.WithLabelValues(connType).Inc()
	defer m.ActiveConnections.WithLabelValues(connType).Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.WithLabelValues(connType).Observe(time.Since(start).Seconds())
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
		m.ConnectionErrors.WithLabelValues(connType, ErrorReason(err)).Inc()
	}
	m.TotalConnections.WithLabelValues(connType, status).Inc()

	return err
}

// ObserveRequest records a parsed request.
func (m *Metrics) ObserveRequest(req *codec.Request) {
	m.MessagesTotal.WithLabelValues("upstream", req.Method.String()).Inc()
	m.MessageSize.WithLabelValues("upstream").Observe(float64(req.Size()))
}

// ObserveResponse records a parsed response.
func (m *Metrics) ObserveResponse(res *codec.Response) {
	code := res.Status.String()[:3]
	m.MessagesTotal.WithLabelValues("downstream", code).Inc()
	m.MessageSize.WithLabelValues("downstream").Observe(float64(res.Size()))
}

// ObserveParseError records a message read that failed.
func (m *Metrics) ObserveParseError(direction string, err error) {
	m.ParseErrors.WithLabelValues(direction, ErrorReason(err)).Inc()
}

// ObserveReject records a reply the proxy sent in place of the backend.
func (m *Metrics) ObserveReject(status codec.Status) {
	m.RejectedTotal.WithLabelValues(status.String()[:3]).Inc()
}

// ObserveAuth tracks an authorization call.
func (m *Metrics) ObserveAuth(operation string, f func() error) error {
	start := time.Now()
	m.AuthAttempts.WithLabelValues(operation).Inc()

	err := f()
	if err != nil {
		m.AuthFailures.WithLabelValues(operation, ErrorReason(err)).Inc()
	}
	m.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	return err
}

// ErrorReason returns a low-cardinality label for err.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "eof"
	case errors.Is(err, mperrors.ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, codec.ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, codec.ErrInvalidHeader):
		return "invalid_header"
	case errors.Is(err, codec.ErrInvalidUTF8):
		return "invalid_utf8"
	case errors.Is(err, mperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, mperrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, mperrors.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, mperrors.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "other"
	}
}
