// Package metrics provides Prometheus metrics collection for the chatsocket client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionStatus reports the current session status (0 disconnected, 1 connecting, 2 connected, 3 error)
	ConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsocket_connection_status",
		Help: "Current connection status of the chat session",
	})

	// EventsReceived tracks inbound events by name
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_events_received_total",
		Help: "Total number of inbound events dispatched to handlers",
	}, []string{"event"})

	// EventsEmitted tracks outbound events handed to the transport
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_events_emitted_total",
		Help: "Total number of outbound events handed to the transport",
	}, []string{"event"})

	// EmitsDropped tracks outbound events dropped because the session was not connected
	EmitsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_emits_dropped_total",
		Help: "Total number of outbound events dropped while disconnected",
	}, []string{"event"})

	// DecodeErrors tracks inbound payloads that failed to decode
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_decode_errors_total",
		Help: "Total number of inbound payloads that failed to decode",
	}, []string{"event"})

	// ConnectErrors tracks failed dial attempts
	ConnectErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsocket_connect_errors_total",
		Help: "Total number of failed connection attempts",
	})

	// Reconnects tracks successful connections after the first one on a transport
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsocket_reconnects_total",
		Help: "Total number of successful reconnections",
	})

	// ListenerPanics tracks panics recovered from listeners and goroutines
	ListenerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_listener_panics_total",
		Help: "Total number of panics recovered from handlers, listeners and pumps",
	}, []string{"component"})

	// APIRequests tracks REST calls by operation and outcome
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsocket_api_requests_total",
		Help: "Total number of REST requests by operation and outcome",
	}, []string{"operation", "outcome"})

	// APILatency tracks REST call latency by operation
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsocket_api_latency_seconds",
		Help:    "Latency of REST requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
