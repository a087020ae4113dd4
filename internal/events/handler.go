package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"condo-chat/internal/chat"
	"condo-chat/internal/errs"
	"condo-chat/internal/models"
)

var tracer = otel.Tracer("condo-chat/internal/events")

// messageIDSpace derives stable message ids from transport message ids.
var messageIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("condo-chat/message.received"))

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	Success Outcome = iota
	RejectPermanently
	RetryTransient
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RejectPermanently:
		return "reject"
	default:
		return "retry"
	}
}

// Result is the outcome of one delivery. Malformed is set when the body
// could not be decoded at all.
type Result struct {
	Outcome   Outcome
	Err       error
	Malformed bool
}

// Delivery is the transport-independent view of a broker message.
type Delivery struct {
	RoutingKey string
	MessageID  string
	Body       []byte
}

// Core is the part of the chat service the handlers drive.
type Core interface {
	Ingest(ctx context.Context, req chat.IngestRequest) (models.Message, bool, error)
	MarkRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error)
	MarkDelivered(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error)
}

type Handler struct {
	core      Core
	publisher chat.Publisher
	log       *slog.Logger
}

func NewHandler(core Core, publisher chat.Publisher, log *slog.Logger) *Handler {
	return &Handler{core: core, publisher: publisher, log: log}
}

// Handle decodes and dispatches one delivery.
func (h *Handler) Handle(ctx context.Context, d Delivery) Result {
	ctx, span := tracer.Start(ctx, "consume "+d.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
			attribute.String("messaging.message.id", d.MessageID),
		))
	defer span.End()

	in, err := Decode(d.RoutingKey, d.Body, d.MessageID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrMalformed) {
			h.log.ErrorContext(ctx, "event decode failed",
				slog.String("routing_key", d.RoutingKey), slog.String("outcome", RetryTransient.String()), slog.Any("error", err))
			return Result{Outcome: RetryTransient, Err: err, Malformed: true}
		}
		h.log.WarnContext(ctx, "event rejected",
			slog.String("routing_key", d.RoutingKey), slog.String("outcome", RejectPermanently.String()), slog.Any("error", err))
		return Result{Outcome: RejectPermanently, Err: err}
	}

	res := h.Dispatch(ctx, in)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	return res
}

// Dispatch runs the handler for the inbound variant.
func (h *Handler) Dispatch(ctx context.Context, in Inbound) Result {
	switch in.Kind {
	case KindReceived:
		return h.settle(ctx, in, h.HandleMessageReceived(ctx, *in.Received, in.DeliveryID))
	case KindRead:
		return h.settle(ctx, in, h.HandleMessageRead(ctx, *in.Read))
	case KindDelivered:
		return h.settle(ctx, in, h.HandleMessageDelivered(ctx, *in.Delivered))
	default:
		h.log.InfoContext(ctx, "unhandled routing key",
			slog.String("routing_key", in.RoutingKey), slog.String("outcome", Success.String()))
		return Result{Outcome: Success}
	}
}

func (h *Handler) settle(ctx context.Context, in Inbound, err error) Result {
	outcome := outcomeFor(err)
	attrs := []any{slog.String("routing_key", in.RoutingKey), slog.String("outcome", outcome.String())}
	switch outcome {
	case Success:
		h.log.DebugContext(ctx, "event handled", attrs...)
	case RejectPermanently:
		h.log.WarnContext(ctx, "event rejected", append(attrs, slog.String("kind", string(errs.KindOf(err))), slog.Any("error", err))...)
	default:
		h.log.ErrorContext(ctx, "event failed, requeueing", append(attrs, slog.Any("error", err))...)
	}
	return Result{Outcome: outcome, Err: err}
}

func outcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errs.Permanent(err):
		return RejectPermanently
	default:
		return RetryTransient
	}
}

// HandleMessageReceived stores a message accepted elsewhere and confirms it
// with message.saved. A redelivered event maps to the same message id and is
// not stored twice.
func (h *Handler) HandleMessageReceived(ctx context.Context, ev models.MessageReceivedEvent, deliveryID string) error {
	var id uuid.UUID
	if deliveryID != "" {
		id = uuid.NewSHA1(messageIDSpace, []byte(deliveryID))
	}

	msg, created, err := h.core.Ingest(ctx, chat.IngestRequest{
		MessageID:      id,
		SenderID:       ev.SenderID,
		RecipientID:    ev.RecipientID,
		ConversationID: ev.ConversationID,
		ApartmentID:    ev.ApartmentID,
		ChatType:       ev.ChatType,
		Content:        ev.Content,
		MessageType:    ev.MessageType,
		IsAnnouncement: ev.IsAnnouncement,
		ReceivedAt:     ev.ReceivedAt,
	})
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "received message stored",
		slog.String("message_id", msg.ID.String()),
		slog.String("conversation_id", msg.ConversationID.String()),
		slog.Bool("created", created))

	if err := h.publisher.Publish(ctx, models.RoutingMessageSaved, models.NewMessageSavedEvent(msg)); err != nil {
		h.log.ErrorContext(ctx, "message.saved publish failed",
			slog.String("message_id", msg.ID.String()), slog.Any("error", err))
	}
	return nil
}

// HandleMessageRead applies a read receipt.
func (h *Handler) HandleMessageRead(ctx context.Context, ev models.MessageReadEvent) error {
	msg, err := h.core.MarkRead(ctx, ev.MessageID, ev.UserID, ev.ReadAt)
	if err != nil {
		return err
	}
	h.log.InfoContext(ctx, "message marked read",
		slog.String("message_id", msg.ID.String()), slog.String("user_id", ev.UserID.String()))
	return nil
}

// HandleMessageDelivered applies a delivery receipt.
func (h *Handler) HandleMessageDelivered(ctx context.Context, ev models.MessageDeliveredEvent) error {
	msg, err := h.core.MarkDelivered(ctx, ev.MessageID, ev.UserID, ev.DeliveredAt)
	if err != nil {
		return err
	}
	h.log.InfoContext(ctx, "message marked delivered",
		slog.String("message_id", msg.ID.String()), slog.String("user_id", ev.UserID.String()))
	return nil
}
