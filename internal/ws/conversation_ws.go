package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"condo-chat/internal/auth"
	"condo-chat/internal/observability"
)

// Membership answers whether a user may follow a conversation.
type Membership interface {
	IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)
}

// ConversationWebSocketHandler serves the live feed of a conversation.
type ConversationWebSocketHandler struct {
	hub        *Hub
	membership Membership
	validator  auth.TokenValidator
	upgrader   websocket.Upgrader
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
// checkOrigin may be nil to accept any origin.
func NewConversationWebSocketHandler(hub *Hub, membership Membership, validator auth.TokenValidator, checkOrigin func(*http.Request) bool) *ConversationWebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &ConversationWebSocketHandler{
		hub:        hub,
		membership: membership,
		validator:  validator,
		upgrader:   websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Handle authenticates, checks membership, upgrades and registers the client.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("condo-chat/internal/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	identity, err := h.validator.Validate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.membership.IsParticipant(ctx, identity.UserID, conversationID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to check membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of the conversation"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := newConnInfo(c.Request, identity.UserID, span.SpanContext().TraceID().String())
	h.hub.Join(conversationID, conn, info)
	observability.IncWSActive(wsKind)
	h.hub.publishLifecycle(context.WithoutCancel(ctx), eventConnect, conversationID, info, "")

	go h.readLoop(context.WithoutCancel(ctx), conversationID, conn, info)
}

// readLoop drains client frames until the connection closes.
func (h *ConversationWebSocketHandler) readLoop(ctx context.Context, conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.Leave(conversationID, conn)
		observability.DecWSActive(wsKind)
		h.hub.publishLifecycle(ctx, eventDisconnect, conversationID, info, closeReason)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.hub.publishLifecycle(ctx, eventError, conversationID, info, closeReason)
			}
			return
		}
	}
}
