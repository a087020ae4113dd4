package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"condo-chat/internal/models"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRepository abstracts conversation membership.
type ParticipantRepository interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (models.ConversationParticipant, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationParticipant, error)
	AddParticipant(ctx context.Context, p models.ConversationParticipant) error
	DeactivateParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
}

const participantColumns = `conversation_id, user_id, is_admin, joined_at, is_active`

// ParticipantRepo is a sqlx implementation of ParticipantRepository.
type ParticipantRepo struct {
	db *sqlx.DB
}

// NewParticipantRepo constructs a ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// IsParticipant checks active membership.
func (r *ParticipantRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2 AND is_active = TRUE)`, conversationID, userID)
	return exists, err
}

// GetParticipant fetches a membership row, active or not.
func (r *ParticipantRepo) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (models.ConversationParticipant, error) {
	var p models.ConversationParticipant
	err := r.db.GetContext(ctx, &p, `SELECT `+participantColumns+` FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationParticipant{}, ErrParticipantNotFound
	}
	return p, err
}

// ListParticipants returns active members in join order.
func (r *ParticipantRepo) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationParticipant, error) {
	var list []models.ConversationParticipant
	err := r.db.SelectContext(ctx, &list, `SELECT `+participantColumns+` FROM conversation_participants
        WHERE conversation_id=$1 AND is_active = TRUE ORDER BY joined_at ASC, user_id ASC`, conversationID)
	return list, err
}

// AddParticipant inserts a member or reactivates a former one.
func (r *ParticipantRepo) AddParticipant(ctx context.Context, p models.ConversationParticipant) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, is_admin, joined_at, is_active)
        VALUES ($1, $2, $3, $4, TRUE)
        ON CONFLICT (conversation_id, user_id) DO UPDATE
        SET is_active = TRUE, is_admin = conversation_participants.is_admin OR EXCLUDED.is_admin`,
		p.ConversationID, p.UserID, p.IsAdmin, p.JoinedAt)
	return err
}

// DeactivateParticipant marks an active member inactive.
func (r *ParticipantRepo) DeactivateParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation_participants SET is_active = FALSE
        WHERE conversation_id=$1 AND user_id=$2 AND is_active = TRUE`, conversationID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrParticipantNotFound
	}
	return nil
}
