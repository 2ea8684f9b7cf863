package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
)

// errorResponse is the JSON error body shared by every API endpoint.
type errorResponse struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   message,
		Status:    status,
	})
}
