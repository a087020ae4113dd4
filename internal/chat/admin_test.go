package chat_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"condo-chat/internal/chat"
	"condo-chat/internal/errs"
)

func TestCreateApartmentConversationConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chat.Options{})
	owner := uuid.New()
	apartment := uuid.New()

	_, err := f.svc.CreateApartmentConversation(ctx, owner, apartment, "", nil)
	require.NoError(t, err)

	_, err = f.svc.CreateApartmentConversation(ctx, uuid.New(), apartment, "", nil)
	assert.True(t, errs.Is(err, errs.KindConflict))

	_, err = f.svc.CreateApartmentConversation(ctx, owner, uuid.Nil, "", nil)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestParticipantManagement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chat.Options{})
	owner, member, newcomer := uuid.New(), uuid.New(), uuid.New()

	conv, err := f.svc.CreateApartmentConversation(ctx, owner, uuid.New(), "", []uuid.UUID{member})
	require.NoError(t, err)

	_, err = f.svc.AddParticipant(ctx, member, conv.ID, newcomer)
	assert.True(t, errs.Is(err, errs.KindForbidden))

	p, err := f.svc.AddParticipant(ctx, owner, conv.ID, newcomer)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.False(t, p.IsAdmin)

	err = f.svc.RemoveParticipant(ctx, member, conv.ID, newcomer)
	assert.True(t, errs.Is(err, errs.KindForbidden))

	require.NoError(t, f.svc.RemoveParticipant(ctx, newcomer, conv.ID, newcomer))
	ok, err := f.svc.IsParticipant(ctx, newcomer, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.RemoveParticipant(ctx, owner, conv.ID, member))
	ok, err = f.svc.IsParticipant(ctx, member, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.AddParticipant(ctx, owner, uuid.New(), newcomer)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestDirectConversationMembershipIsFixed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, chat.Options{})
	u := f.users(2)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	msg, err := f.svc.Send(ctx, chat.SendRequest{SenderID: u[0], RecipientID: &u[1], Content: "hi"})
	require.NoError(t, err)

	_, err = f.svc.AddParticipant(ctx, u[0], msg.ConversationID, uuid.New())
	assert.True(t, errs.Is(err, errs.KindValidation))

	err = f.svc.RemoveParticipant(ctx, u[0], msg.ConversationID, u[1])
	assert.True(t, errs.Is(err, errs.KindValidation))
}
