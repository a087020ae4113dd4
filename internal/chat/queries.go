package chat

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
	"condo-chat/internal/repositories"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ListConversationsForUser returns the user's active conversations, most
// recently active first, each with its last message, unread count and members.
func (s *Service) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	convs, err := s.store.Conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	convs = lo.Filter(convs, func(c models.Conversation, _ int) bool { return c.IsActive })

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := models.ConversationSummary{Conversation: conv}

		last, err := s.store.Messages.LastMessage(ctx, conv.ID)
		switch {
		case err == nil:
			summary.LastMessage = &last
		case !errors.Is(err, repositories.ErrMessageNotFound):
			return nil, storeErr("load last message", err)
		}

		if summary.UnreadCount, err = s.store.Messages.UnreadCount(ctx, conv.ID, userID); err != nil {
			return nil, storeErr("count unread messages", err)
		}
		if summary.Participants, err = s.store.Participants.ListParticipants(ctx, conv.ID); err != nil {
			return nil, storeErr("list participants", err)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ActivityAt().After(summaries[j].ActivityAt())
	})
	return summaries, nil
}

// ListMessages pages through a conversation in sentAt order. take == 0
// selects DefaultPageSize. Callers check membership first.
func (s *Service) ListMessages(ctx context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error) {
	if skip < 0 {
		return nil, errs.Validation("skip must not be negative")
	}
	if take == 0 {
		take = DefaultPageSize
	}
	if take < 1 || take > MaxPageSize {
		return nil, errs.Validation("take must be between 1 and 100")
	}
	msgs, err := s.store.Messages.ListByConversation(ctx, conversationID, skip, take)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

// IsParticipant reports whether the user is an active member of the conversation.
func (s *Service) IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	ok, err := s.store.Participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, storeErr("check participant", err)
	}
	return ok, nil
}

// ListUserMessages returns the messages sent by the user, oldest first.
func (s *Service) ListUserMessages(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	msgs, err := s.store.Messages.ListBySender(ctx, userID)
	if err != nil {
		return nil, storeErr("list user messages", err)
	}
	return msgs, nil
}

// ListApartmentMessages returns the group messages of an apartment. The user
// must be an active member of the apartment's conversation.
func (s *Service) ListApartmentMessages(ctx context.Context, userID, apartmentID uuid.UUID) ([]models.Message, error) {
	conv, err := s.store.Conversations.FindApartmentConversation(ctx, apartmentID)
	if err != nil {
		return nil, storeErr("find apartment conversation", err)
	}
	ok, err := s.IsParticipant(ctx, userID, conv.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Forbidden("not a participant of the apartment conversation")
	}
	msgs, err := s.store.Messages.ListByApartment(ctx, apartmentID)
	if err != nil {
		return nil, storeErr("list apartment messages", err)
	}
	return msgs, nil
}
