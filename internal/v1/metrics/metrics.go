package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat broker.
//
// Naming convention: namespace_subsystem_name
// - namespace: orc (application-level grouping)
// - subsystem: websocket, stream, hub, rate_limit (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, subscriptions)
// - Counter: Cumulative events (messages posted, frames fanned out)
// - Histogram: Latency distributions (operation time)

var (
	// ActiveWebSocketConnections tracks the current number of live realtime sessions.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orc",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	// ActiveRooms is a gauge for the number of rooms; no code path sets or
	// adjusts it, so it reports 0.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orc",
		Subsystem: "stream",
		Name:      "rooms_active",
		Help:      "Current number of rooms",
	})

	// RoomSubscriptions tracks live hub subscriptions per room.
	RoomSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orc",
		Subsystem: "hub",
		Name:      "room_subscriptions",
		Help:      "Number of sessions subscribed to each room",
	}, []string{"room_id"})

	// MessagesPosted counts stream mutations by operation and stream kind.
	MessagesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "stream",
		Name:      "mutations_total",
		Help:      "Total stream mutations processed",
	}, []string{"operation", "kind"})

	// FanoutFrames counts frames delivered to sessions by event type.
	FanoutFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "hub",
		Name:      "fanout_frames_total",
		Help:      "Total event frames delivered to sessions",
	}, []string{"event_type"})

	// SlowConsumerDisconnects counts sessions closed for a full send buffer.
	SlowConsumerDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "websocket",
		Name:      "slow_consumer_disconnects_total",
		Help:      "Sessions closed because their outbound buffer overflowed",
	})

	// HeartbeatDisconnects counts sessions closed for missed pongs.
	HeartbeatDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "websocket",
		Name:      "heartbeat_disconnects_total",
		Help:      "Sessions closed after two consecutive missed pongs",
	})

	// OperationDuration tracks the time spent in orchestrated operations.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orc",
		Subsystem: "stream",
		Name:      "operation_duration_seconds",
		Help:      "Time spent executing core operations",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"operation"})

	// RateLimitExceeded counts requests rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests counts requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orc",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// CircuitBreakerState tracks the Redis limiter store breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orc",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// UploadBytes tracks stored blob sizes.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orc",
		Subsystem: "media",
		Name:      "upload_bytes",
		Help:      "Size distribution of stored blobs",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
