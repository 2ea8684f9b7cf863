// Package ratelimit wraps ulule/limiter with the store selection and the
// HTTP/WebSocket checks the server needs.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
)

// Limits holds the formatted rate strings ("100-M" = 100 per minute).
type Limits struct {
	APIGlobal string
	APIRooms  string
	WsPerIP   string
}

// RateLimiter applies per-IP limits to the HTTP API and WebSocket upgrades.
// Backed by Redis when available so limits hold across instances, in-memory
// otherwise.
type RateLimiter struct {
	apiGlobal *limiter.Limiter
	apiRooms  *limiter.Limiter
	wsPerIP   *limiter.Limiter
}

// New builds the limiter set. rdb may be nil for single-instance
// deployments.
func New(limits Limits, rdb *redis.Client) (*RateLimiter, error) {
	newStore := func() (limiter.Store, error) {
		if rdb == nil {
			return memory.NewStore(), nil
		}
		return sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix: "speakup:ratelimit",
		})
	}

	build := func(formatted string) (*limiter.Limiter, error) {
		rate, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
		}
		store, err := newStore()
		if err != nil {
			return nil, fmt.Errorf("create limiter store: %w", err)
		}
		return limiter.New(store, rate), nil
	}

	rl := &RateLimiter{}
	var err error
	if rl.apiGlobal, err = build(limits.APIGlobal); err != nil {
		return nil, err
	}
	if rl.apiRooms, err = build(limits.APIRooms); err != nil {
		return nil, err
	}
	if rl.wsPerIP, err = build(limits.WsPerIP); err != nil {
		return nil, err
	}
	return rl, nil
}

// GlobalMiddleware applies the shared per-IP API limit.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.apiGlobal, "global")
}

// RoomsMiddleware applies the tighter per-IP limit on room creation.
func (rl *RateLimiter) RoomsMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.apiRooms, "rooms")
}

func (rl *RateLimiter) middleware(l *limiter.Limiter, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.RateLimitRequests.WithLabelValues(name).Inc()
		key := fmt.Sprintf("%s:%s", name, c.ClientIP())
		lctx, err := l.Get(c.Request.Context(), key)
		if err != nil {
			// Limiter store trouble should not take the API down.
			logging.Warn(c.Request.Context(), "rate limiter unavailable",
				zap.String("limiter", name), zap.Error(err))
			c.Next()
			return
		}
		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(name, "ip").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "rate limit exceeded",
				"status":  http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

// CheckWebSocket enforces the per-IP upgrade limit. Returns false when the
// upgrade should be refused.
func (rl *RateLimiter) CheckWebSocket(ctx context.Context, ip string) bool {
	metrics.RateLimitRequests.WithLabelValues("ws").Inc()
	lctx, err := rl.wsPerIP.Get(ctx, "ws:"+ip)
	if err != nil {
		logging.Warn(ctx, "rate limiter unavailable",
			zap.String("limiter", "ws"), zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws", "ip").Inc()
		return false
	}
	return true
}
