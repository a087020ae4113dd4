package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"condo-chat/internal/telemetry"
)

// RoomCounter reports how many live clients follow a conversation.
type RoomCounter interface {
	RoomSize(conversationID uuid.UUID) int
}

// RegisterDebugRoutes wires debug-only endpoints. Nothing is mounted unless enabled.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, rooms RoomCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "debug.audit_test", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/conversations/:conversation_id/live", func(c *gin.Context) {
		conversationID, ok := uuidParam(c, "conversation_id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "connections": rooms.RoomSize(conversationID)})
	})
}
