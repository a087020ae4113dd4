package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Conversation is a message thread, either between two users or for an apartment.
type Conversation struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	Type            ConversationType `db:"type" json:"type"`
	Name            *string          `db:"name" json:"name,omitempty"`
	ApartmentID     *uuid.UUID       `db:"apartment_id" json:"apartment_id,omitempty"`
	CreatedByUserID uuid.UUID        `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	IsActive        bool             `db:"is_active" json:"is_active"`
	LastMessageAt   *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
}

// ActivityAt is the sort key for conversation listings.
func (c Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ConversationParticipant links a user to a conversation.
type ConversationParticipant struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	IsAdmin        bool      `db:"is_admin" json:"is_admin"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
}

// DirectPair orders two user ids so that an unordered pair has one key.
func DirectPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// ConversationSummary is the listing view of a conversation for one user.
type ConversationSummary struct {
	Conversation
	UnreadCount  int                       `json:"unread_count"`
	LastMessage  *Message                  `json:"last_message,omitempty"`
	Participants []ConversationParticipant `json:"participants"`
}
