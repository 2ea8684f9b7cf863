package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limits Limits) *RateLimiter {
	t.Helper()
	rl, err := New(limits, nil)
	require.NoError(t, err)
	return rl
}

func TestNewRejectsBadRateFormat(t *testing.T) {
	_, err := New(Limits{APIGlobal: "lots", APIRooms: "100-M", WsPerIP: "100-M"}, nil)
	assert.Error(t, err)
}

func TestGlobalMiddlewareEnforcesLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestLimiter(t, Limits{APIGlobal: "3-M", APIRooms: "100-M", WsPerIP: "100-M"})

	router := gin.New()
	router.Use(rl.GlobalMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLimitsAreTrackedPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newTestLimiter(t, Limits{APIGlobal: "1-M", APIRooms: "100-M", WsPerIP: "100-M"})

	router := gin.New()
	router.Use(rl.GlobalMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", i+1)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "distinct IPs get their own budget")
	}
}

func TestCheckWebSocketLimit(t *testing.T) {
	rl := newTestLimiter(t, Limits{APIGlobal: "100-M", APIRooms: "100-M", WsPerIP: "2-M"})
	ctx := context.Background()

	assert.True(t, rl.CheckWebSocket(ctx, "10.1.1.1"))
	assert.True(t, rl.CheckWebSocket(ctx, "10.1.1.1"))
	assert.False(t, rl.CheckWebSocket(ctx, "10.1.1.1"))
	assert.True(t, rl.CheckWebSocket(ctx, "10.1.1.2"), "other IPs are unaffected")
}
