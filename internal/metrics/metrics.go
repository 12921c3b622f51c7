// Package metrics provides Prometheus metrics for the chat server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RealtimeConnections tracks open websocket connections by role.
	RealtimeConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_realtime_connections",
			Help: "Number of open realtime connections",
		},
		[]string{"role"},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_realtime_events_total",
			Help: "Inbound realtime events by name and outcome",
		},
		[]string{"event", "result"},
	)

	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_created_total",
			Help: "Messages persisted by sender role and transport",
		},
		[]string{"sender_role", "transport"},
	)

	RetentionSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_sweeps_total",
			Help: "Retention sweep cycles by result",
		},
		[]string{"result"},
	)

	RetentionSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retention_sweep_duration_seconds",
			Help:    "Duration of retention sweep cycles",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	RetentionHiddenMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_hidden_messages_total",
			Help: "User messages hidden from the user by the retention sweep",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_online_users",
			Help: "End-users with at least one live connection",
		},
	)
)

func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordConnectionOpened(role string) {
	RealtimeConnections.WithLabelValues(role).Inc()
}

func RecordConnectionClosed(role string) {
	RealtimeConnections.WithLabelValues(role).Dec()
}

func RecordEvent(event, result string) {
	RealtimeEvents.WithLabelValues(event, result).Inc()
}

func RecordMessage(senderRole, transport string) {
	MessagesCreated.WithLabelValues(senderRole, transport).Inc()
}

// RecordSweep records one retention cycle.
func RecordSweep(hidden int64, elapsed time.Duration, err error) {
	RetentionSweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		RetentionSweeps.WithLabelValues("error").Inc()
		return
	}
	RetentionSweeps.WithLabelValues("success").Inc()
	RetentionHiddenMessages.Add(float64(hidden))
}
