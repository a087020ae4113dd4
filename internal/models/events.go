package models

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the community topic exchange.
const (
	RoutingUserRegistered    = "user.registered"
	RoutingUserUpdated       = "user.updated"
	RoutingUserDeleted       = "user.deleted"
	RoutingAuthAuthenticated = "auth.user.authenticated"
	RoutingAuthLoggedOut     = "auth.user.loggedout"
	RoutingAuthRefreshed     = "auth.user.refreshed"
	RoutingMessageSent       = "message.sent"
	RoutingMessageSaved      = "message.saved"
	RoutingMessageReceived   = "message.received"
	RoutingMessageRead       = "message.read"
	RoutingMessageDelivered  = "message.delivered"
)

// InboundRoutingKeys are bound to the consumer queue.
var InboundRoutingKeys = []string{RoutingMessageReceived, RoutingMessageRead, RoutingMessageDelivered}

// MessageSentEvent is published by the send path after the message is stored.
type MessageSentEvent struct {
	MessageID      uuid.UUID   `json:"MessageId"`
	SenderID       uuid.UUID   `json:"SenderId"`
	ConversationID uuid.UUID   `json:"ConversationId"`
	RecipientID    *uuid.UUID  `json:"RecipientId,omitempty"`
	ApartmentID    *uuid.UUID  `json:"ApartmentId,omitempty"`
	Content        string      `json:"Content"`
	MessageType    MessageType `json:"MessageType"`
	ChatType       ChatType    `json:"ChatType"`
	SentAt         time.Time   `json:"SentAt"`
	IsAnnouncement bool        `json:"IsAnnouncement"`
}

// MessageReceivedEvent asks this service to persist a message accepted elsewhere.
type MessageReceivedEvent struct {
	SenderID       uuid.UUID   `json:"SenderId" validate:"required"`
	RecipientID    *uuid.UUID  `json:"RecipientId,omitempty"`
	ConversationID *uuid.UUID  `json:"ConversationId,omitempty"`
	ApartmentID    *uuid.UUID  `json:"ApartmentId,omitempty"`
	ChatType       ChatType    `json:"ChatType" validate:"required"`
	Content        string      `json:"Content" validate:"required,min=1,max=1000"`
	MessageType    MessageType `json:"MessageType"`
	ReceivedAt     time.Time   `json:"ReceivedAt" validate:"required"`
	IsAnnouncement bool        `json:"IsAnnouncement"`
}

// MessageSavedEvent confirms that a received message was stored.
type MessageSavedEvent struct {
	MessageID      uuid.UUID   `json:"MessageId"`
	SenderID       uuid.UUID   `json:"SenderId"`
	RecipientID    *uuid.UUID  `json:"RecipientId,omitempty"`
	ConversationID uuid.UUID   `json:"ConversationId"`
	Content        string      `json:"Content"`
	MessageType    MessageType `json:"MessageType"`
	ChatType       ChatType    `json:"ChatType"`
	SentAt         time.Time   `json:"SentAt"`
	IsAnnouncement bool        `json:"IsAnnouncement"`
}

// MessageReadEvent is a read receipt.
type MessageReadEvent struct {
	MessageID uuid.UUID `json:"MessageId" validate:"required"`
	UserID    uuid.UUID `json:"UserId" validate:"required"`
	ReadAt    time.Time `json:"ReadAt" validate:"required"`
}

// MessageDeliveredEvent is a delivery receipt.
type MessageDeliveredEvent struct {
	MessageID   uuid.UUID `json:"MessageId" validate:"required"`
	UserID      uuid.UUID `json:"UserId" validate:"required"`
	DeliveredAt time.Time `json:"DeliveredAt" validate:"required"`
}

func NewMessageSentEvent(m Message) MessageSentEvent {
	return MessageSentEvent{
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		ConversationID: m.ConversationID,
		RecipientID:    m.RecipientID,
		ApartmentID:    m.ApartmentID,
		Content:        m.Content,
		MessageType:    m.Type,
		ChatType:       m.ChatType,
		SentAt:         m.SentAt,
		IsAnnouncement: m.IsAnnouncement(),
	}
}

func NewMessageSavedEvent(m Message) MessageSavedEvent {
	return MessageSavedEvent{
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		MessageType:    m.Type,
		ChatType:       m.ChatType,
		SentAt:         m.SentAt,
		IsAnnouncement: m.IsAnnouncement(),
	}
}
