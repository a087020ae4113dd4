package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"condo-chat/internal/chat"
	"condo-chat/internal/models"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) Send(ctx context.Context, req chat.SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, conversationID uuid.UUID, skip, take int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, skip, take)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, conversationID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatServiceMock) ListUserMessages(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) ListApartmentMessages(ctx context.Context, userID, apartmentID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, userID, apartmentID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) CreateApartmentConversation(ctx context.Context, creatorID, apartmentID uuid.UUID, name string, memberIDs []uuid.UUID) (models.Conversation, error) {
	args := m.Called(ctx, creatorID, apartmentID, name, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) AddParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) (models.ConversationParticipant, error) {
	args := m.Called(ctx, actorID, conversationID, userID)
	var p models.ConversationParticipant
	if val := args.Get(0); val != nil {
		p = val.(models.ConversationParticipant)
	}
	return p, args.Error(1)
}

func (m *ChatServiceMock) RemoveParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) error {
	args := m.Called(ctx, actorID, conversationID, userID)
	return args.Error(0)
}

// CoreMock stands in for the chat core driven by the event handlers.
type CoreMock struct {
	mock.Mock
}

func (m *CoreMock) Ingest(ctx context.Context, req chat.IngestRequest) (models.Message, bool, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *CoreMock) MarkRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, at)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *CoreMock) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, at)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}
