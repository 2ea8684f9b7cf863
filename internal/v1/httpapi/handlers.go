// Package httpapi serves the room management REST surface.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/ratelimit"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/registry"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/storage"
)

// Handler holds the API's dependencies.
type Handler struct {
	registry *registry.Registry
	now      func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg, now: time.Now}
}

// Register mounts the API routes. limiter may be nil (tests).
func (h *Handler) Register(r gin.IRouter, limiter *ratelimit.RateLimiter) {
	api := r.Group("/api/v1")
	create := api.Group("/rooms")
	if limiter != nil {
		create.Use(limiter.RoomsMiddleware())
	}
	create.POST("", h.CreateRoom)

	api.POST("/rooms/:code/join", h.JoinRoom)
	api.GET("/rooms/:code/ttl", h.RoomTTL)
	api.GET("/rooms/:code/cooldown", h.RoomCooldown)
	api.GET("/storage/:code/download", h.DownloadRecordings)
}

type createRoomRequest struct {
	EnableCloudRecording bool `json:"enableCloudRecording"`
}

func roomBody(room *registry.Room) gin.H {
	return gin.H{
		"code":       room.Code,
		"persistent": room.Persistent,
		"expiredAt":  room.ExpiredAt.UTC().Format(time.RFC3339),
	}
}

// CreateRoom allocates a new room and returns its code and expiry. The body
// is optional; an empty body creates a room without cloud recording.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	room, err := h.registry.CreateRoom(c.Request.Context(), req.EnableCloudRecording)
	if err != nil {
		logging.Error(c.Request.Context(), "room creation failed", zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "could not allocate a room")
		return
	}
	c.JSON(http.StatusCreated, roomBody(room))
}

// JoinRoom validates that a room code refers to a live room. The WebSocket
// endpoint performs the same check; this exists so clients can validate a
// code before committing to an upgrade.
func (h *Handler) JoinRoom(c *gin.Context) {
	code := c.Param("code")
	if !registry.ValidCode(code) {
		abortWithError(c, http.StatusBadRequest, "room codes are three letters followed by three digits")
		return
	}
	room, ok := h.registry.Lookup(code)
	if !ok {
		abortWithError(c, http.StatusNotFound, "room not found")
		return
	}
	c.JSON(http.StatusOK, roomBody(room))
}

// RoomTTL reports the room's remaining lifetime in milliseconds, zero once
// expired.
func (h *Handler) RoomTTL(c *gin.Context) {
	code := c.Param("code")
	remaining, ok := h.registry.TTLRemaining(code)
	if !ok {
		abortWithError(c, http.StatusNotFound, "room not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "ttl": remaining.Milliseconds()})
}

// RoomCooldown reports how long the room's recordings remain downloadable,
// in milliseconds. Works for live rooms and rooms already expired.
func (h *Handler) RoomCooldown(c *gin.Context) {
	code := c.Param("code")
	remaining, ok := h.registry.CooldownRemaining(code)
	if !ok {
		abortWithError(c, http.StatusNotFound, "room not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "cooldown": remaining.Milliseconds()})
}

// DownloadRecordings streams a ZIP of the room's capture files. Available
// while the room is live and during the post-expiry cooldown.
func (h *Handler) DownloadRecordings(c *gin.Context) {
	code := c.Param("code")
	files, ok := h.registry.Recordings(code)
	if !ok {
		abortWithError(c, http.StatusNotFound, "room not found or recordings purged")
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-recordings.zip"`, code))
	if err := storage.WriteArchive(c.Writer, code, files, h.now()); err != nil {
		// Headers are already out; log and drop the connection.
		logging.Error(c.Request.Context(), "recording archive failed",
			zap.String("roomCode", code), zap.Error(err))
		c.Abort()
	}
}
