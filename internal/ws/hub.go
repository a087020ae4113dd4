package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"condo-chat/internal/models"
	"condo-chat/internal/observability"
)

const (
	wsKind          = "conversation"
	wsRoutingKey    = "ws_events.conversations"
	writeWait       = 5 * time.Second
	eventMessage    = "message"
	eventConnect    = "ws_connect"
	eventDisconnect = "ws_disconnect"
	eventError      = "ws_error"
)

// EventPublisher receives websocket lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// LifecycleEvent is published on connect, disconnect and write errors.
type LifecycleEvent struct {
	EventType      string    `json:"event_type"`
	EventName      string    `json:"event_name"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ConnID         string    `json:"conn_id"`
	UserID         uuid.UUID `json:"user_id"`
	IP             string    `json:"ip"`
	RequestID      string    `json:"request_id"`
	TraceID        string    `json:"trace_id,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Reason         string    `json:"reason,omitempty"`
}

type client struct {
	conn *websocket.Conn
	info ConnInfo
	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains one room of live connections per conversation.
type Hub struct {
	rooms     map[uuid.UUID]map[*websocket.Conn]*client
	mu        sync.RWMutex
	publisher EventPublisher
	log       *slog.Logger
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher EventPublisher, log *slog.Logger) *Hub {
	return &Hub{
		rooms:     make(map[uuid.UUID]map[*websocket.Conn]*client),
		publisher: publisher,
		log:       log,
	}
}

// Join registers a websocket connection to a conversation room.
func (h *Hub) Join(conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[conversationID][conn] = &client{conn: conn, info: info}
}

// Leave removes a connection and drops the room once it is empty.
func (h *Hub) Leave(conversationID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[conversationID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// RoomSize returns the number of live connections of a conversation.
func (h *Hub) RoomSize(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastMessage pushes a newly stored message to the conversation.
func (h *Hub) BroadcastMessage(conversationID uuid.UUID, msg models.Message) {
	resp := msg.Response()
	h.broadcast(conversationID, models.LiveEvent{Type: eventMessage, Message: &resp})
}

// BroadcastReceipt pushes a read or delivery receipt to the conversation.
func (h *Hub) BroadcastReceipt(conversationID uuid.UUID, event string, messageID, userID uuid.UUID, at time.Time) {
	h.broadcast(conversationID, models.LiveEvent{
		Type:       event,
		MessageID:  &messageID,
		UserID:     &userID,
		OccurredAt: &at,
	})
}

func (h *Hub) broadcast(conversationID uuid.UUID, event models.LiveEvent) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode live event", slog.Any("error", err))
		return
	}
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.log.Warn("websocket write error",
				slog.String("conversation_id", conversationID.String()),
				slog.String("conn_id", c.info.ConnID),
				slog.Any("error", err))
			_ = c.conn.Close()
			h.Leave(conversationID, c.conn)
			h.publishLifecycle(context.Background(), eventError, conversationID, c.info, err.Error())
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.rooms {
		for conn := range clients {
			if conn != nil {
				_ = conn.Close()
			}
		}
		delete(h.rooms, id)
	}
}

func (h *Hub) publishLifecycle(ctx context.Context, name string, conversationID uuid.UUID, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, name)
	if h.publisher == nil {
		return
	}
	var duration int64
	if name != eventConnect {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	err := h.publisher.Publish(ctx, wsRoutingKey, LifecycleEvent{
		EventType:      "ws_events",
		EventName:      name,
		ConversationID: conversationID,
		ConnID:         info.ConnID,
		UserID:         info.UserID,
		IP:             info.IP,
		RequestID:      info.RequestID,
		TraceID:        info.TraceID,
		DurationMS:     duration,
		Reason:         reason,
	})
	if err != nil {
		h.log.Debug("ws lifecycle publish failed", slog.String("event", name), slog.Any("error", err))
	}
}
