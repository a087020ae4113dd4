package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatTypeDecodesNameOrOrdinal(t *testing.T) {
	cases := map[string]ChatType{
		`"Direct"`:         ChatDirect,
		`"ApartmentGroup"`: ChatApartmentGroup,
		`0`:                ChatDirect,
		`1`:                ChatApartmentGroup,
	}
	for raw, want := range cases {
		var got ChatType
		require.NoError(t, json.Unmarshal([]byte(raw), &got), raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{`2`, `-1`, `"Group"`, `true`} {
		var got ChatType
		assert.Error(t, json.Unmarshal([]byte(raw), &got), raw)
	}
}

func TestMessageTypeDecodesNameOrOrdinal(t *testing.T) {
	var got MessageType
	require.NoError(t, json.Unmarshal([]byte(`1`), &got))
	assert.Equal(t, MessageAnnouncement, got)
	require.NoError(t, json.Unmarshal([]byte(`"Text"`), &got))
	assert.Equal(t, MessageText, got)
	assert.Error(t, json.Unmarshal([]byte(`"Poll"`), &got))
}

func TestEnumsAcceptNullAndEmpty(t *testing.T) {
	ct := ChatApartmentGroup
	require.NoError(t, json.Unmarshal([]byte(`null`), &ct))
	assert.Equal(t, ChatApartmentGroup, ct)
	require.NoError(t, json.Unmarshal([]byte(`""`), &ct))
	assert.Equal(t, ChatType(""), ct)

	mt := MessageAnnouncement
	require.NoError(t, json.Unmarshal([]byte(`null`), &mt))
	assert.Equal(t, MessageAnnouncement, mt)
	require.NoError(t, json.Unmarshal([]byte(`""`), &mt))
	assert.Equal(t, MessageType(""), mt)
}

func TestMessageResponseRoundTripsZeroEnums(t *testing.T) {
	raw, err := json.Marshal(Message{ID: uuid.New()}.Response())
	require.NoError(t, err)

	var back MessageResponse
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Empty(t, back.ChatType)
	assert.Empty(t, back.Type)
}

func TestMessageReceivedEventWireFormat(t *testing.T) {
	sender, conv := uuid.New(), uuid.New()
	body := `{"SenderId":"` + sender.String() + `","ConversationId":"` + conv.String() +
		`","ChatType":1,"Content":"hello","MessageType":0,"ReceivedAt":"2026-01-02T03:04:05Z","IsAnnouncement":false}`

	var ev MessageReceivedEvent
	require.NoError(t, json.Unmarshal([]byte(body), &ev))
	assert.Equal(t, sender, ev.SenderID)
	require.NotNil(t, ev.ConversationID)
	assert.Equal(t, conv, *ev.ConversationID)
	assert.Equal(t, ChatApartmentGroup, ev.ChatType)
	assert.Equal(t, MessageText, ev.MessageType)
	assert.Nil(t, ev.RecipientID)
}

func TestMessageSentEventEncodesEnumNames(t *testing.T) {
	apartment := uuid.New()
	msg := Message{
		ID:             uuid.New(),
		SenderID:       uuid.New(),
		ConversationID: uuid.New(),
		ApartmentID:    &apartment,
		Content:        "notice",
		Type:           MessageAnnouncement,
		ChatType:       ChatApartmentGroup,
		SentAt:         time.Now().UTC(),
	}
	raw, err := json.Marshal(NewMessageSentEvent(msg))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ApartmentGroup", decoded["ChatType"])
	assert.Equal(t, "Announcement", decoded["MessageType"])
	assert.Equal(t, true, decoded["IsAnnouncement"])
	assert.NotContains(t, decoded, "RecipientId")
}

func TestChatTypeConsistent(t *testing.T) {
	apartment := uuid.New()
	assert.True(t, Message{ChatType: ChatDirect}.ChatTypeConsistent())
	assert.False(t, Message{ChatType: ChatDirect, ApartmentID: &apartment}.ChatTypeConsistent())
	assert.True(t, Message{ChatType: ChatApartmentGroup, ApartmentID: &apartment}.ChatTypeConsistent())
	assert.False(t, Message{ChatType: ChatApartmentGroup}.ChatTypeConsistent())
	assert.False(t, Message{}.ChatTypeConsistent())
}

func TestDirectPairIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lowAB, highAB := DirectPair(a, b)
	lowBA, highBA := DirectPair(b, a)
	assert.Equal(t, lowAB, lowBA)
	assert.Equal(t, highAB, highBA)
	assert.NotEqual(t, lowAB, highAB)
}

func TestConversationActivityAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	conv := Conversation{CreatedAt: created}
	assert.Equal(t, created, conv.ActivityAt())

	last := created.Add(time.Hour)
	conv.LastMessageAt = &last
	assert.Equal(t, last, conv.ActivityAt())
}
