package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"condo-chat/internal/observability"
)

// ConnInfo identifies one websocket client in logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      uuid.UUID
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID uuid.UUID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now().UTC(),
	}
}
