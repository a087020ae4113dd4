package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
	"condo-chat/internal/repositories"
)

// ResolveRequest names the conversation a message belongs to.
type ResolveRequest struct {
	SenderID       uuid.UUID
	ChatType       models.ChatType
	RecipientID    *uuid.UUID
	ConversationID *uuid.UUID
	ApartmentID    *uuid.UUID
}

// Resolver finds or creates the conversation owning a message.
type Resolver struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	now           func() time.Time
}

func NewResolver(conversations repositories.ConversationRepository, participants repositories.ParticipantRepository) *Resolver {
	return &Resolver{
		conversations: conversations,
		participants:  participants,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the direct conversation of the sender/recipient pair,
// creating it on first contact, or the group conversation the sender is an
// active member of.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (models.Conversation, error) {
	switch req.ChatType {
	case models.ChatDirect:
		return r.resolveDirect(ctx, req)
	case models.ChatApartmentGroup:
		return r.resolveGroup(ctx, req)
	default:
		return models.Conversation{}, errs.Validation("unknown chat type")
	}
}

func (r *Resolver) resolveDirect(ctx context.Context, req ResolveRequest) (models.Conversation, error) {
	if req.RecipientID == nil || *req.RecipientID == uuid.Nil {
		return models.Conversation{}, errs.Validation("recipient is required for direct messages")
	}
	if *req.RecipientID == req.SenderID {
		return models.Conversation{}, errs.Validation("cannot send a direct message to yourself")
	}

	conv, err := r.conversations.FindDirectConversation(ctx, req.SenderID, *req.RecipientID)
	if err == nil {
		return activeDirect(conv)
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, errs.Transient("find direct conversation", err)
	}

	conv, err = r.conversations.CreateDirectConversation(ctx, req.SenderID, req.SenderID, *req.RecipientID, r.now())
	if err != nil {
		if errors.Is(err, repositories.ErrSelfConversation) {
			return models.Conversation{}, errs.Validation("cannot send a direct message to yourself")
		}
		return models.Conversation{}, errs.Transient("create direct conversation", err)
	}
	return activeDirect(conv)
}

// activeDirect rejects a pair conversation that was deactivated. The pair
// keeps its row, so a new one is never created in its place.
func activeDirect(conv models.Conversation) (models.Conversation, error) {
	if !conv.IsActive {
		return models.Conversation{}, errs.NotFound("conversation not found")
	}
	return conv, nil
}

func (r *Resolver) resolveGroup(ctx context.Context, req ResolveRequest) (models.Conversation, error) {
	var (
		conv models.Conversation
		err  error
	)
	switch {
	case req.ConversationID != nil && *req.ConversationID != uuid.Nil:
		conv, err = r.conversations.GetConversation(ctx, *req.ConversationID)
	case req.ApartmentID != nil && *req.ApartmentID != uuid.Nil:
		conv, err = r.conversations.FindApartmentConversation(ctx, *req.ApartmentID)
	default:
		return models.Conversation{}, errs.Validation("conversation or apartment is required for group messages")
	}
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return models.Conversation{}, errs.NotFound("conversation not found")
		}
		return models.Conversation{}, errs.Transient("load group conversation", err)
	}
	if !conv.IsActive || conv.Type != models.ConversationGroupApartment {
		return models.Conversation{}, errs.NotFound("conversation not found")
	}
	if req.ApartmentID != nil && conv.ApartmentID != nil && *req.ApartmentID != *conv.ApartmentID {
		return models.Conversation{}, errs.Validation("conversation does not belong to the apartment")
	}

	ok, err := r.participants.IsParticipant(ctx, conv.ID, req.SenderID)
	if err != nil {
		return models.Conversation{}, errs.Transient("check participant", err)
	}
	if !ok {
		return models.Conversation{}, errs.Forbidden("sender is not a participant of the conversation")
	}
	return conv, nil
}
