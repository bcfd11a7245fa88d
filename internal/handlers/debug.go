package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-presence/internal/models"
	"chat-presence/internal/telemetry"
)

// Stats reports live transport and presence counts.
type Stats interface {
	ClientCount() int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, stats Stats, chat ChatQueries, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/stats", func(c *gin.Context) {
		online := 0
		users := chat.Users()
		for _, u := range users {
			if u.Status == models.StatusOnline {
				online++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"connections": stats.ClientCount(),
			"users":       len(users),
			"online":      online,
			"rooms":       len(chat.RoomIDs()),
			"request_id":  requestIDFromContext(c),
		})
	})
}
