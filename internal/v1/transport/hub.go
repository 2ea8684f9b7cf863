// Package transport accepts WebSocket connections and bridges them to room
// message handlers.
package transport

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/ratelimit"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/registry"
)

// helloMessage is sent to every accepted connection before any frame is
// processed; legacy clients use it as the connected signal.
const helloMessage = "Hello from WebSocket!"

// Hub upgrades HTTP requests to WebSocket connections and attaches them to
// the requested room.
type Hub struct {
	registry *registry.Registry
	limiter  *ratelimit.RateLimiter
	upgrader websocket.Upgrader
}

// NewHub creates the hub. limiter may be nil to disable the per-IP upgrade
// limit.
func NewHub(reg *registry.Registry, allowedOrigins []string, limiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		registry: reg,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				if origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWs handles GET /:code. Unknown or malformed codes are rejected with
// a plain string body before the upgrade.
func (h *Hub) ServeWs(c *gin.Context) {
	code := c.Param("code")
	ctx := logging.WithRoomCode(c.Request.Context(), code)

	if h.limiter != nil && !h.limiter.CheckWebSocket(ctx, c.ClientIP()) {
		c.String(http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if !registry.ValidCode(code) {
		c.String(http.StatusNotFound, "Invalid room code")
		return
	}
	room, ok := h.registry.Lookup(code)
	if !ok {
		c.String(http.StatusNotFound, "Room not found")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		logging.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.IncConnection()
	logging.Debug(ctx, "websocket connected", zap.String("remoteAddr", conn.RemoteAddr().String()))

	client := newClient(conn, room.Handler)
	client.SendText(helloMessage)

	// The pumps outlive the HTTP request; detach from its cancellation but
	// keep the log fields.
	client.run(context.WithoutCancel(ctx))
}
