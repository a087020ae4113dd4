package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"condo-chat/internal/chat"
	"condo-chat/internal/errs"
	"condo-chat/internal/logger"
	"condo-chat/internal/mocks"
	"condo-chat/internal/models"
)

const receivedBody = `{
	"SenderId": "6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21",
	"RecipientId": "2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80",
	"ChatType": "Direct",
	"Content": "Hello",
	"ReceivedAt": "2026-03-01T10:00:00Z"
}`

func newTestHandler() (*Handler, *mocks.CoreMock, *mocks.PublisherMock) {
	core := new(mocks.CoreMock)
	publisher := new(mocks.PublisherMock)
	return NewHandler(core, publisher, logger.Nop()), core, publisher
}

func TestHandleMessageReceivedPublishesSaved(t *testing.T) {
	h, core, publisher := newTestHandler()
	stored := models.Message{ID: uuid.New(), ConversationID: uuid.New(), ChatType: models.ChatDirect}

	core.On("Ingest", mock.Anything, mock.AnythingOfType("chat.IngestRequest")).Return(stored, true, nil)
	publisher.On("Publish", mock.Anything, models.RoutingMessageSaved, mock.AnythingOfType("models.MessageSavedEvent")).Return(nil)

	res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageReceived, MessageID: "amqp-1", Body: []byte(receivedBody)})
	assert.Equal(t, Success, res.Outcome)
	assert.NoError(t, res.Err)

	published := publisher.Published(models.RoutingMessageSaved)
	require.Len(t, published, 1)
	saved := published[0].(models.MessageSavedEvent)
	assert.Equal(t, stored.ID, saved.MessageID)
	core.AssertExpectations(t)
}

func TestHandleMessageReceivedDerivesStableID(t *testing.T) {
	h, core, publisher := newTestHandler()
	core.On("Ingest", mock.Anything, mock.Anything).Return(models.Message{ID: uuid.New()}, false, nil)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for i := 0; i < 2; i++ {
		h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageReceived, MessageID: "amqp-7", Body: []byte(receivedBody)})
	}
	h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageReceived, MessageID: "amqp-8", Body: []byte(receivedBody)})

	require.Len(t, core.Calls, 3)
	first := core.Calls[0].Arguments.Get(1).(chat.IngestRequest)
	second := core.Calls[1].Arguments.Get(1).(chat.IngestRequest)
	third := core.Calls[2].Arguments.Get(1).(chat.IngestRequest)

	assert.NotEqual(t, uuid.Nil, first.MessageID)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.NotEqual(t, first.MessageID, third.MessageID)
	assert.Equal(t, models.ChatDirect, first.ChatType)
	assert.Equal(t, "Hello", first.Content)
}

func TestHandleMessageReceivedWithoutDeliveryID(t *testing.T) {
	h, core, publisher := newTestHandler()
	core.On("Ingest", mock.Anything, mock.Anything).Return(models.Message{ID: uuid.New()}, true, nil)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageReceived, Body: []byte(receivedBody)})

	req := core.Calls[0].Arguments.Get(1).(chat.IngestRequest)
	assert.Equal(t, uuid.Nil, req.MessageID)
}

func TestHandleSavedPublishFailureStillSucceeds(t *testing.T) {
	h, core, publisher := newTestHandler()
	core.On("Ingest", mock.Anything, mock.Anything).Return(models.Message{ID: uuid.New()}, true, nil)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageReceived, MessageID: "amqp-1", Body: []byte(receivedBody)})
	assert.Equal(t, Success, res.Outcome)
}

func TestHandleOutcomes(t *testing.T) {
	readBody := []byte(`{"MessageId":"2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80","UserId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","ReadAt":"2026-03-01T10:00:00Z"}`)

	tests := []struct {
		name    string
		coreErr error
		want    Outcome
	}{
		{"success", nil, Success},
		{"missing message", errs.NotFound("message not found"), RejectPermanently},
		{"forbidden", errs.Forbidden("not a participant"), RejectPermanently},
		{"database down", errs.Transient("mark message read", errors.New("connection refused")), RetryTransient},
		{"unclassified", errors.New("boom"), RetryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, core, _ := newTestHandler()
			core.On("MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(models.Message{}, tt.coreErr)

			res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageRead, Body: readBody})
			assert.Equal(t, tt.want, res.Outcome)
			assert.False(t, res.Malformed)
		})
	}
}

func TestHandleMessageDelivered(t *testing.T) {
	h, core, _ := newTestHandler()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgID := uuid.MustParse("2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80")
	userID := uuid.MustParse("6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21")
	core.On("MarkDelivered", mock.Anything, msgID, userID, mock.MatchedBy(at.Equal)).Return(models.Message{ID: msgID}, nil)

	body := []byte(`{"MessageId":"2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80","UserId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","DeliveredAt":"2026-03-01T10:00:00Z"}`)
	res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageDelivered, Body: body})
	assert.Equal(t, Success, res.Outcome)
	core.AssertExpectations(t)
}

func TestHandleMalformedAndInvalidPayloads(t *testing.T) {
	h, core, _ := newTestHandler()

	res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageRead, Body: []byte("{")})
	assert.Equal(t, RetryTransient, res.Outcome)
	assert.True(t, res.Malformed)

	res = h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingMessageRead, Body: []byte("{}")})
	assert.Equal(t, RejectPermanently, res.Outcome)
	assert.False(t, res.Malformed)

	core.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleUnknownRoutingKey(t *testing.T) {
	h, core, _ := newTestHandler()
	res := h.Handle(context.Background(), Delivery{RoutingKey: models.RoutingUserUpdated, Body: []byte(`{}`)})
	assert.Equal(t, Success, res.Outcome)
	assert.Empty(t, core.Calls)
}
