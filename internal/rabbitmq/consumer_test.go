package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"condo-chat/internal/chat"
	"condo-chat/internal/events"
	"condo-chat/internal/logger"
	"condo-chat/internal/mocks"
	"condo-chat/internal/models"
	"condo-chat/internal/repositories"
)

type settlement struct {
	ack     bool
	nack    bool
	reject  bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.record(settlement{ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.record(settlement{nack: true, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.record(settlement{reject: true, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) record(s settlement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, s)
}

func (f *fakeAcknowledger) last() settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled[len(f.settled)-1]
}

type stubHandler struct {
	result events.Result
}

func (s stubHandler) Handle(context.Context, events.Delivery) events.Result {
	return s.result
}

// recordingHandler keeps every log record for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) warnings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.Level == slog.LevelWarn {
			out = append(out, r.Message)
		}
	}
	return out
}

func delivery(ack amqp.Acknowledger, routingKey, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   routingKey,
		MessageId:    uuid.NewString(),
		Body:         []byte(body),
	}
}

func TestProcessSettlesByOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result events.Result
		want   settlement
	}{
		{"success acks", events.Result{Outcome: events.Success}, settlement{ack: true}},
		{"permanent failure acks", events.Result{Outcome: events.RejectPermanently}, settlement{ack: true}},
		{"transient failure requeues", events.Result{Outcome: events.RetryTransient}, settlement{nack: true, requeue: true}},
		{"malformed below limit requeues", events.Result{Outcome: events.RetryTransient, Malformed: true}, settlement{nack: true, requeue: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			c := NewConsumer(nil, ConsumerConfig{MaxRedeliveries: 5}, stubHandler{tt.result}, logger.Nop())

			outcome := c.Process(context.Background(), delivery(ack, models.RoutingMessageRead, "{}"))
			assert.Equal(t, tt.result.Outcome, outcome)
			assert.Equal(t, tt.want, ack.last())
		})
	}
}

func TestProcessRejectsMalformedAfterRedeliveryLimit(t *testing.T) {
	ack := &fakeAcknowledger{}
	c := NewConsumer(nil, ConsumerConfig{MaxRedeliveries: 3}, stubHandler{events.Result{Outcome: events.RetryTransient, Malformed: true}}, logger.Nop())

	d := delivery(ack, models.RoutingMessageRead, "{")
	d.Headers = amqp.Table{"x-delivery-count": int64(3)}
	c.Process(context.Background(), d)
	assert.Equal(t, settlement{reject: true}, ack.last())

	transient := NewConsumer(nil, ConsumerConfig{MaxRedeliveries: 3}, stubHandler{events.Result{Outcome: events.RetryTransient}}, logger.Nop())
	transient.Process(context.Background(), d)
	assert.Equal(t, settlement{nack: true, requeue: true}, ack.last())

	unguarded := NewConsumer(nil, ConsumerConfig{}, stubHandler{events.Result{Outcome: events.RetryTransient, Malformed: true}}, logger.Nop())
	unguarded.Process(context.Background(), d)
	assert.Equal(t, settlement{nack: true, requeue: true}, ack.last())
}

func TestDeliveryCount(t *testing.T) {
	assert.Equal(t, int64(0), deliveryCount(nil))
	assert.Equal(t, int64(2), deliveryCount(amqp.Table{"x-delivery-count": int32(2)}))
	assert.Equal(t, int64(4), deliveryCount(amqp.Table{"x-delivery-count": int64(4)}))
	assert.Equal(t, int64(0), deliveryCount(amqp.Table{"x-delivery-count": "4"}))
}

func TestQueueArgs(t *testing.T) {
	assert.Nil(t, queueArgs(ConsumerConfig{Queue: "chat"}))
	assert.Equal(t, amqp.Table{"x-dead-letter-exchange": "dlx"},
		queueArgs(ConsumerConfig{DeadLetterExchange: "dlx"}))

	args := queueArgs(ConsumerConfig{DeadLetterExchange: "dlx", MaxRedeliveries: 5})
	assert.Equal(t, "quorum", args["x-queue-type"])
	assert.Equal(t, "dlx", args["x-dead-letter-exchange"])
	require.NoError(t, args.Validate())
}

func TestConsumeStopsOnCancelAndClose(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{}, stubHandler{events.Result{Outcome: events.Success}}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	deliveries := make(chan amqp.Delivery)
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, deliveries) }()

	ack := &fakeAcknowledger{}
	deliveries <- delivery(ack, models.RoutingMessageRead, "{}")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after cancel")
	}
	assert.Equal(t, settlement{ack: true}, ack.last())

	closed := make(chan amqp.Delivery)
	close(closed)
	assert.ErrorIs(t, c.Consume(context.Background(), closed), errDeliveriesClosed)
}

type pipeline struct {
	store    *repositories.MemStore
	svc      *chat.Service
	consumer *Consumer
	logs     *recordingHandler
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	store := repositories.NewMemStore()
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logs := &recordingHandler{}
	log := slog.New(logs)
	svc := chat.NewService(chat.MemoryStore(store), publisher, nil, log, chat.Options{})
	handler := events.NewHandler(svc, publisher, log)
	return &pipeline{
		store:    store,
		svc:      svc,
		consumer: NewConsumer(nil, ConsumerConfig{MaxRedeliveries: 5}, handler, log),
		logs:     logs,
	}
}

func TestReceivedGroupMessageForUnknownConversationIsAckedAndDropped(t *testing.T) {
	p := newPipeline(t)
	ack := &fakeAcknowledger{}

	body := `{
		"SenderId": "6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21",
		"ConversationId": "` + uuid.NewString() + `",
		"ChatType": "ApartmentGroup",
		"Content": "Hello",
		"ReceivedAt": "2026-03-01T10:00:00Z"
	}`
	outcome := p.consumer.Process(context.Background(), delivery(ack, models.RoutingMessageReceived, body))

	assert.Equal(t, events.RejectPermanently, outcome)
	assert.Equal(t, settlement{ack: true}, ack.last())
	_, _, messages := p.store.Counts()
	assert.Zero(t, messages)
	assert.Contains(t, p.logs.warnings(), "event rejected")
}

func TestReceivedDirectMessageIsStoredOnceAcrossRedelivery(t *testing.T) {
	p := newPipeline(t)
	ack := &fakeAcknowledger{}

	body := `{
		"SenderId": "6f1c2a0e-8f4b-4a55-9d0e-0b8f4c7a1d21",
		"RecipientId": "2b0e7c44-1f5e-4d2a-8a4e-3c1d5e6f7a80",
		"ChatType": 0,
		"Content": "Hello",
		"ReceivedAt": "2026-03-01T10:00:00Z"
	}`
	d := delivery(ack, models.RoutingMessageReceived, body)
	p.consumer.Process(context.Background(), d)
	d.Redelivered = true
	p.consumer.Process(context.Background(), d)

	conversations, participants, messages := p.store.Counts()
	assert.Equal(t, 1, conversations)
	assert.Equal(t, 2, participants)
	assert.Equal(t, 1, messages)
	assert.Equal(t, settlement{ack: true}, ack.last())
}

func TestMalformedReceiptIsRequeuedThenApplied(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	a, b := uuid.New(), uuid.New()

	msg, _, err := p.svc.Ingest(ctx, chat.IngestRequest{
		SenderID:    a,
		RecipientID: &b,
		ChatType:    models.ChatDirect,
		Content:     "Hello",
		ReceivedAt:  time.Now(),
	})
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	p.consumer.Process(ctx, delivery(ack, models.RoutingMessageRead, `{"MessageId": "`+msg.ID.String()))
	assert.Equal(t, settlement{nack: true, requeue: true}, ack.last())

	stored, err := p.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)

	valid := `{"MessageId":"` + msg.ID.String() + `","UserId":"` + b.String() + `","ReadAt":"2026-03-01T10:00:00Z"}`
	p.consumer.Process(ctx, delivery(ack, models.RoutingMessageRead, valid))
	assert.Equal(t, settlement{ack: true}, ack.last())

	stored, err = p.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}
