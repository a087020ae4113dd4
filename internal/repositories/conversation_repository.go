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
	ErrConversationNotFound        = errors.New("conversation not found")
	ErrSelfConversation            = errors.New("cannot create conversation with self")
	ErrApartmentConversationExists = errors.New("apartment already has an active conversation")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error)
	FindDirectConversation(ctx context.Context, userA, userB uuid.UUID) (models.Conversation, error)
	CreateDirectConversation(ctx context.Context, createdBy, userA, userB uuid.UUID, at time.Time) (models.Conversation, error)
	FindApartmentConversation(ctx context.Context, apartmentID uuid.UUID) (models.Conversation, error)
	CreateApartmentConversation(ctx context.Context, conv models.Conversation, memberIDs []uuid.UUID) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
}

const conversationColumns = `id, type, name, apartment_id, created_by_user_id, created_at, is_active, last_message_at`

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindDirectConversation looks up the direct conversation of an unordered pair.
func (r *ConversationRepo) FindDirectConversation(ctx context.Context, userA, userB uuid.UUID) (models.Conversation, error) {
	low, high := models.DirectPair(userA, userB)
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE direct_user_low=$1 AND direct_user_high=$2`, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateDirectConversation inserts the direct conversation for a pair and both
// participant rows in one transaction. If a concurrent transaction won the
// unique (direct_user_low, direct_user_high) constraint, the surviving row is
// re-read and returned instead.
func (r *ConversationRepo) CreateDirectConversation(ctx context.Context, createdBy, userA, userB uuid.UUID, at time.Time) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	low, high := models.DirectPair(userA, userB)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv, `INSERT INTO conversations (id, type, created_by_user_id, created_at, is_active, direct_user_low, direct_user_high)
        VALUES ($1, $2, $3, $4, TRUE, $5, $6)
        ON CONFLICT (direct_user_low, direct_user_high) DO NOTHING
        RETURNING `+conversationColumns, uuid.New(), models.ConversationDirect, createdBy, at, low, high)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE direct_user_low=$1 AND direct_user_high=$2`, low, high)
	}
	if err != nil {
		return models.Conversation{}, err
	}

	for _, userID := range []uuid.UUID{low, high} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, is_admin, joined_at, is_active)
            VALUES ($1, $2, FALSE, $3, TRUE)
            ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv.ID, userID, at); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// FindApartmentConversation returns the active group conversation of an apartment.
func (r *ConversationRepo) FindApartmentConversation(ctx context.Context, apartmentID uuid.UUID) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations
        WHERE apartment_id=$1 AND type=$2 AND is_active = TRUE`, apartmentID, models.ConversationGroupApartment)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateApartmentConversation creates a group conversation and its members
// atomically. The creator becomes an admin.
func (r *ConversationRepo) CreateApartmentConversation(ctx context.Context, conv models.Conversation, memberIDs []uuid.UUID) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var created models.Conversation
	err = tx.GetContext(ctx, &created, `INSERT INTO conversations (id, type, name, apartment_id, created_by_user_id, created_at, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, TRUE)
        RETURNING `+conversationColumns, conv.ID, models.ConversationGroupApartment, conv.Name, conv.ApartmentID, conv.CreatedByUserID, conv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Conversation{}, ErrApartmentConversationExists
		}
		return models.Conversation{}, err
	}

	for _, userID := range memberSet(conv.CreatedByUserID, memberIDs) {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, is_admin, joined_at, is_active)
            VALUES ($1, $2, $3, $4, TRUE)`, created.ID, userID, userID == conv.CreatedByUserID, conv.CreatedAt); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return created, nil
}

// ListConversationsForUser returns active conversations the user actively
// participates in, most recent activity first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT c.id, c.type, c.name, c.apartment_id, c.created_by_user_id, c.created_at, c.is_active, c.last_message_at
        FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1 AND p.is_active = TRUE AND c.is_active = TRUE
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID)
	return convs, err
}

// memberSet dedupes members and makes sure the owner is included first.
func memberSet(ownerID uuid.UUID, memberIDs []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{ownerID: {}}
	ids := []uuid.UUID{ownerID}
	for _, id := range memberIDs {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
