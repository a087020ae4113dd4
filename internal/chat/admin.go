package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
	"condo-chat/internal/repositories"
)

// CreateApartmentConversation opens the group conversation of an apartment.
// The creator joins as admin, members as regular participants.
func (s *Service) CreateApartmentConversation(ctx context.Context, creatorID, apartmentID uuid.UUID, name string, memberIDs []uuid.UUID) (models.Conversation, error) {
	if apartmentID == uuid.Nil {
		return models.Conversation{}, errs.Validation("apartment is required")
	}
	if creatorID == uuid.Nil {
		return models.Conversation{}, errs.Validation("creator is required")
	}

	conv := models.Conversation{
		ID:              uuid.New(),
		Type:            models.ConversationGroupApartment,
		ApartmentID:     &apartmentID,
		CreatedByUserID: creatorID,
		CreatedAt:       s.now(),
		IsActive:        true,
	}
	if name = strings.TrimSpace(name); name != "" {
		conv.Name = &name
	}

	members := lo.Without(lo.Uniq(memberIDs), uuid.Nil, creatorID)
	created, err := s.store.Conversations.CreateApartmentConversation(ctx, conv, members)
	if err != nil {
		return models.Conversation{}, storeErr("create apartment conversation", err)
	}

	s.log.InfoContext(ctx, "apartment conversation created",
		slog.String("conversation_id", created.ID.String()),
		slog.String("apartment_id", apartmentID.String()),
		slog.Int("members", len(members)+1))
	return created, nil
}

// AddParticipant adds or reactivates a member of a group conversation. The
// actor must be an active admin.
func (s *Service) AddParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) (models.ConversationParticipant, error) {
	if userID == uuid.Nil {
		return models.ConversationParticipant{}, errs.Validation("user is required")
	}
	if _, err := s.groupConversation(ctx, conversationID); err != nil {
		return models.ConversationParticipant{}, err
	}
	if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
		return models.ConversationParticipant{}, err
	}

	p := models.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       s.now(),
		IsActive:       true,
	}
	if err := s.store.Participants.AddParticipant(ctx, p); err != nil {
		return models.ConversationParticipant{}, storeErr("add participant", err)
	}
	stored, err := s.store.Participants.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return models.ConversationParticipant{}, storeErr("load participant", err)
	}
	return stored, nil
}

// RemoveParticipant deactivates a member. Admins may remove anyone, other
// members only themselves.
func (s *Service) RemoveParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) error {
	if _, err := s.groupConversation(ctx, conversationID); err != nil {
		return err
	}
	if actorID != userID {
		if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
			return err
		}
	}
	if err := s.store.Participants.DeactivateParticipant(ctx, conversationID, userID); err != nil {
		return storeErr("remove participant", err)
	}
	return nil
}

func (s *Service) groupConversation(ctx context.Context, conversationID uuid.UUID) (models.Conversation, error) {
	conv, err := s.store.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, storeErr("load conversation", err)
	}
	if conv.Type == models.ConversationDirect {
		return models.Conversation{}, errs.Validation("direct conversations have fixed participants")
	}
	if !conv.IsActive {
		return models.Conversation{}, errs.NotFound("conversation not found")
	}
	return conv, nil
}

func (s *Service) requireAdmin(ctx context.Context, conversationID, userID uuid.UUID) error {
	p, err := s.store.Participants.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return errs.Forbidden("only conversation admins can manage participants")
	}
	if err != nil {
		return storeErr("load participant", err)
	}
	if !p.IsActive || !p.IsAdmin {
		return errs.Forbidden("only conversation admins can manage participants")
	}
	return nil
}
