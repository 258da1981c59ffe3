// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_transitions_total",
			Help: "Committed transaction status transitions",
		},
		[]string{"gateway", "from", "to"},
	)

	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_gateway_calls_total",
			Help: "Outbound gateway calls by result",
		},
		[]string{"gateway", "op", "result"},
	)

	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_engine_gateway_call_duration_seconds",
			Help:    "Duration of outbound gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway", "op"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_callbacks_total",
			Help: "Gateway callbacks and verification results by disposition",
		},
		[]string{"gateway", "disposition"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_engine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	GRPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_engine_tasks_total",
			Help: "Background tasks processed by type and result",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(GatewayCallsTotal)
	prometheus.MustRegister(GatewayCallDuration)
	prometheus.MustRegister(CallbacksTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(GRPCRequestsTotal)
	prometheus.MustRegister(TasksTotal)
}

// ObserveGatewayCall records one adapter call. result is ok, transient,
// permanent or awaiting.
func ObserveGatewayCall(gateway, op, result string, started time.Time) {
	GatewayCallsTotal.WithLabelValues(gateway, op, result).Inc()
	GatewayCallDuration.WithLabelValues(gateway, op).Observe(time.Since(started).Seconds())
}
