// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const redisProbeTimeout = 2 * time.Second

// Handler serves the health endpoints. rdb is optional; when nil, readiness
// does not depend on Redis.
type Handler struct {
	rdb       *redis.Client
	startedAt time.Time
}

// NewHandler creates the health handler.
func NewHandler(rdb *redis.Client) *Handler {
	return &Handler{rdb: rdb, startedAt: time.Now()}
}

// Register mounts the probes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health/live", h.Liveness)
	r.GET("/health/ready", h.Readiness)
}

// Liveness reports that the process is up.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Readiness reports whether the server can take traffic. With Redis
// configured, a failed ping makes the instance not ready so load balancers
// stop routing new rooms to it.
func (h *Handler) Readiness(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), redisProbeTimeout)
		defer cancel()
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
