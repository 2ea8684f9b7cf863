package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the push-to-talk server.
//
// Naming convention: namespace_subsystem_name
// - namespace: speakup (application-level grouping)
// - subsystem: websocket, room, storage (feature-level grouping)
// - name: specific metric (connections_active, frames_total, etc.)

var (
	// ActiveWebSocketConnections tracks the current number of open WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "speakup",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live (unexpired) rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "speakup",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// RoomsInCooldown tracks rooms whose recordings remain downloadable.
	RoomsInCooldown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "speakup",
		Subsystem: "room",
		Name:      "rooms_cooldown",
		Help:      "Number of expired rooms still inside the download cooldown",
	})

	// WebsocketFrames counts processed frames by classification.
	WebsocketFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total WebSocket frames processed",
	}, []string{"kind"})

	// WebsocketFramesDropped counts outbound frames dropped because a peer's
	// send buffer was full.
	WebsocketFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "websocket",
		Name:      "frames_dropped_total",
		Help:      "Outbound frames dropped due to a full per-connection send buffer",
	})

	// AudioBytesRelayed counts audio payload bytes forwarded to listeners.
	AudioBytesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "websocket",
		Name:      "audio_bytes_relayed_total",
		Help:      "Total audio payload bytes relayed to room listeners",
	})

	// CaptureFlushes counts completed speaking turns handed to the storage sink.
	CaptureFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "storage",
		Name:      "capture_flushes_total",
		Help:      "Completed speaking turns flushed to the storage sink",
	})

	// FrameProcessingDuration tracks time spent handling a single frame.
	FrameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "speakup",
		Subsystem: "websocket",
		Name:      "frame_processing_seconds",
		Help:      "Time spent processing WebSocket frames",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"kind"})

	// RateLimitRequests counts requests evaluated by the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests evaluated by the rate limiter",
	}, []string{"path"})

	// RateLimitExceeded counts rejected requests by path and limit type.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speakup",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"path", "limit_type"})

	// CircuitBreakerState exposes breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "speakup",
		Subsystem: "storage",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
