package models

import (
	"time"

	"github.com/google/uuid"
)

const MaxContentLength = 1000

// Message is a single chat message. Only the delivery and read fields change
// after creation.
type Message struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Seq            int64       `db:"seq" json:"-"`
	SenderID       uuid.UUID   `db:"sender_id" json:"sender_id"`
	ConversationID uuid.UUID   `db:"conversation_id" json:"conversation_id"`
	RecipientID    *uuid.UUID  `db:"recipient_id" json:"recipient_id,omitempty"`
	ApartmentID    *uuid.UUID  `db:"apartment_id" json:"apartment_id,omitempty"`
	Content        string      `db:"content" json:"content"`
	Type           MessageType `db:"type" json:"type"`
	ChatType       ChatType    `db:"chat_type" json:"chat_type"`
	SentAt         time.Time   `db:"sent_at" json:"sent_at"`
	IsDelivered    bool        `db:"is_delivered" json:"is_delivered"`
	DeliveredAt    *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	IsRead         bool        `db:"is_read" json:"is_read"`
	ReadAt         *time.Time  `db:"read_at" json:"read_at,omitempty"`
}

// IsAnnouncement reports whether the message is an announcement.
func (m Message) IsAnnouncement() bool {
	return m.Type == MessageAnnouncement
}

// ChatTypeConsistent checks that direct messages carry no apartment and
// apartment messages always do.
func (m Message) ChatTypeConsistent() bool {
	switch m.ChatType {
	case ChatDirect:
		return m.ApartmentID == nil
	case ChatApartmentGroup:
		return m.ApartmentID != nil
	}
	return false
}

// MessageResponse is the client-facing projection of a message.
type MessageResponse struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	SenderID       uuid.UUID   `json:"sender_id"`
	RecipientID    *uuid.UUID  `json:"recipient_id,omitempty"`
	ApartmentID    *uuid.UUID  `json:"apartment_id,omitempty"`
	Content        string      `json:"content"`
	ChatType       ChatType    `json:"chat_type"`
	Type           MessageType `json:"type"`
	SentAt         time.Time   `json:"sent_at"`
	IsAnnouncement bool        `json:"is_announcement"`
	IsDelivered    bool        `json:"is_delivered"`
	IsRead         bool        `json:"is_read"`
}

func (m Message) Response() MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		ApartmentID:    m.ApartmentID,
		Content:        m.Content,
		ChatType:       m.ChatType,
		Type:           m.Type,
		SentAt:         m.SentAt,
		IsAnnouncement: m.IsAnnouncement(),
		IsDelivered:    m.IsDelivered,
		IsRead:         m.IsRead,
	}
}

// LiveEvent is pushed to websocket subscribers of a conversation.
type LiveEvent struct {
	Type       string           `json:"type"`
	Message    *MessageResponse `json:"message,omitempty"`
	MessageID  *uuid.UUID       `json:"message_id,omitempty"`
	UserID     *uuid.UUID       `json:"user_id,omitempty"`
	OccurredAt *time.Time       `json:"occurred_at,omitempty"`
}
