package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"condo-chat/internal/models"
)

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrInconsistentChatType = errors.New("chat type does not match apartment")
)

// MessageRepository defines interactions for messages.
type MessageRepository interface {
	// CreateMessage stores msg and advances the conversation's last_message_at.
	// created is false when a message with the same id already existed, in
	// which case the stored row is returned unchanged.
	CreateMessage(ctx context.Context, msg models.Message) (stored models.Message, created bool, err error)
	GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error)
	ListBySender(ctx context.Context, senderID uuid.UUID) ([]models.Message, error)
	ListByApartment(ctx context.Context, apartmentID uuid.UUID) ([]models.Message, error)
	LastMessage(ctx context.Context, conversationID uuid.UUID) (models.Message, error)
	UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, at time.Time) (models.Message, error)
	MarkDelivered(ctx context.Context, messageID uuid.UUID, at time.Time) (models.Message, error)
}

const messageColumns = `id, seq, sender_id, conversation_id, recipient_id, apartment_id, content, type, chat_type,
        sent_at, is_delivered, delivered_at, is_read, read_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage inserts the message and bumps last_message_at in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	if !msg.ChatTypeConsistent() {
		return models.Message{}, false, ErrInconsistentChatType
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	created := true
	var stored models.Message
	err = tx.GetContext(ctx, &stored, `INSERT INTO messages (id, sender_id, conversation_id, recipient_id, apartment_id, content, type, chat_type, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING
        RETURNING `+messageColumns,
		msg.ID, msg.SenderID, msg.ConversationID, msg.RecipientID, msg.ApartmentID, msg.Content, msg.Type, msg.ChatType, msg.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
		err = tx.GetContext(ctx, &stored, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, msg.ID)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		err = ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, false, err
	}

	if created {
		// GREATEST skips NULL, so the first message sets the value.
		if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id=$1`,
			stored.ConversationID, stored.SentAt); err != nil {
			return models.Message{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, false, err
	}
	return stored, created, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListByConversation returns one page of history, oldest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1
        ORDER BY sent_at ASC, seq ASC
        OFFSET $2 LIMIT $3`, conversationID, skip, take)
	return msgs, err
}

// ListBySender returns every message the user sent.
func (r *MessageRepo) ListBySender(ctx context.Context, senderID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE sender_id=$1 ORDER BY sent_at ASC, seq ASC`, senderID)
	return msgs, err
}

// ListByApartment returns the apartment's group messages.
func (r *MessageRepo) ListByApartment(ctx context.Context, apartmentID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE apartment_id=$1 ORDER BY sent_at ASC, seq ASC`, apartmentID)
	return msgs, err
}

// LastMessage returns the newest message of a conversation.
func (r *MessageRepo) LastMessage(ctx context.Context, conversationID uuid.UUID) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 ORDER BY sent_at DESC, seq DESC LIMIT 1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UnreadCount counts messages from others that are not read yet.
func (r *MessageRepo) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`, conversationID, userID)
	return count, err
}

// MarkRead flags a message read. The first read_at wins, so replays are no-ops.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID uuid.UUID, at time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET is_read = TRUE, read_at = COALESCE(read_at, $2)
        WHERE id=$1 RETURNING `+messageColumns, messageID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkDelivered flags a message delivered. The first delivered_at wins.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID uuid.UUID, at time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET is_delivered = TRUE, delivered_at = COALESCE(delivered_at, $2)
        WHERE id=$1 RETURNING `+messageColumns, messageID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
