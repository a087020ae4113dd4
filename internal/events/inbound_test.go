package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
)

func TestDecodeMessageReceivedAcceptsOrdinals(t *testing.T) {
	body := []byte(`{
		"SenderId": "6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21",
		"ConversationId": "2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80",
		"ChatType": 1,
		"Content": "Hello",
		"MessageType": 1,
		"ReceivedAt": "2026-03-01T10:00:00Z"
	}`)

	in, err := Decode(models.RoutingMessageReceived, body, "amqp-1")
	require.NoError(t, err)
	assert.Equal(t, KindReceived, in.Kind)
	assert.Equal(t, "amqp-1", in.DeliveryID)
	require.NotNil(t, in.Received)
	assert.Equal(t, models.ChatApartmentGroup, in.Received.ChatType)
	assert.Equal(t, models.MessageAnnouncement, in.Received.MessageType)
	assert.Nil(t, in.Read)
}

func TestDecodeMessageReceivedNullMessageType(t *testing.T) {
	body := []byte(`{
		"SenderId": "6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21",
		"RecipientId": "2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80",
		"ChatType": "Direct",
		"Content": "Hello",
		"MessageType": null,
		"ReceivedAt": "2026-03-01T10:00:00Z"
	}`)

	in, err := Decode(models.RoutingMessageReceived, body, "")
	require.NoError(t, err)
	require.NotNil(t, in.Received)
	assert.Equal(t, models.ChatDirect, in.Received.ChatType)
	assert.Empty(t, in.Received.MessageType)
}

func TestDecodeReceipts(t *testing.T) {
	read := []byte(`{"MessageId":"2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80","UserId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","ReadAt":"2026-03-01T10:00:00Z"}`)
	in, err := Decode(models.RoutingMessageRead, read, "")
	require.NoError(t, err)
	assert.Equal(t, KindRead, in.Kind)
	require.NotNil(t, in.Read)

	delivered := []byte(`{"MessageId":"2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80","UserId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","DeliveredAt":"2026-03-01T10:00:00Z"}`)
	in, err = Decode(models.RoutingMessageDelivered, delivered, "")
	require.NoError(t, err)
	assert.Equal(t, KindDelivered, in.Kind)
	require.NotNil(t, in.Delivered)
}

func TestDecodeUnknownRoutingKeyIgnoresBody(t *testing.T) {
	in, err := Decode(models.RoutingUserRegistered, []byte("not json"), "")
	require.NoError(t, err)
	assert.Equal(t, KindUnhandled, in.Kind)
	assert.Equal(t, "unhandled", in.Kind.String())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		body      string
		malformed bool
	}{
		{"truncated json", models.RoutingMessageRead, `{"MessageId":`, true},
		{"wrong field type", models.RoutingMessageRead, `{"MessageId":42}`, true},
		{"unknown chat type", models.RoutingMessageReceived, `{"ChatType":"Broadcast"}`, true},
		{"missing receipt fields", models.RoutingMessageRead, `{}`, false},
		{"null chat type", models.RoutingMessageReceived, `{"SenderId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","ChatType":null,"Content":"hi","ReceivedAt":"2026-03-01T10:00:00Z"}`, false},
		{"empty chat type", models.RoutingMessageReceived, `{"SenderId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","ChatType":"","Content":"hi","ReceivedAt":"2026-03-01T10:00:00Z"}`, false},
		{"empty content", models.RoutingMessageReceived, `{"SenderId":"6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21","ChatType":0,"Content":"","ReceivedAt":"2026-03-01T10:00:00Z"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.key, []byte(tt.body), "")
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformed))
			if !tt.malformed {
				assert.True(t, errs.Is(err, errs.KindValidation))
			}
		})
	}
}
