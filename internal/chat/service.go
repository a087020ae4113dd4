package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
	"condo-chat/internal/observability"
	"condo-chat/internal/repositories"
)

var tracer = otel.Tracer("condo-chat/internal/chat")

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Notifier pushes live updates to connected clients of a conversation.
type Notifier interface {
	BroadcastMessage(conversationID uuid.UUID, msg models.Message)
	BroadcastReceipt(conversationID uuid.UUID, event string, messageID, userID uuid.UUID, at time.Time)
}

// Store groups the repositories the chat core works against.
type Store struct {
	Conversations repositories.ConversationRepository
	Participants  repositories.ParticipantRepository
	Messages      repositories.MessageRepository
	Users         repositories.UserDirectory
}

// MemoryStore wires every repository to one in-memory store.
func MemoryStore(m *repositories.MemStore) Store {
	return Store{Conversations: m, Participants: m, Messages: m, Users: m}
}

type Options struct {
	// AutoProvisionSenders inserts a placeholder user for unknown senders
	// instead of rejecting the send.
	AutoProvisionSenders bool
}

// DeliveryError reports a message that was stored but whose message.sent
// event could not be published.
type DeliveryError struct {
	MessageID uuid.UUID
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message %s stored but event not published: %v", e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Service implements the send path, the query facade and conversation administration.
type Service struct {
	store     Store
	resolver  *Resolver
	publisher Publisher
	notifier  Notifier
	log       *slog.Logger
	opts      Options
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, notifier Notifier, log *slog.Logger, opts Options) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:     store,
		resolver:  NewResolver(store.Conversations, store.Participants),
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// SendRequest is a client send. Exactly one of RecipientID or an
// apartment/conversation target is expected.
type SendRequest struct {
	SenderID       uuid.UUID
	RecipientID    *uuid.UUID
	ApartmentID    *uuid.UUID
	ConversationID *uuid.UUID
	Content        string
	IsAnnouncement bool
}

func (r SendRequest) chatType() (models.ChatType, error) {
	switch {
	case r.RecipientID != nil && (r.ApartmentID != nil || r.ConversationID != nil):
		return "", errs.Validation("recipient_id cannot be combined with apartment_id or conversation_id")
	case r.RecipientID != nil:
		return models.ChatDirect, nil
	case r.ApartmentID != nil || r.ConversationID != nil:
		return models.ChatApartmentGroup, nil
	default:
		return "", errs.Validation("recipient_id or apartment_id is required")
	}
}

// Send stores a message and publishes message.sent. When the publish fails
// the stored message is returned together with a *DeliveryError.
func (s *Service) Send(ctx context.Context, req SendRequest) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.Send")
	defer span.End()

	msg, err := s.send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errs.KindOf(err)))
	} else {
		span.SetAttributes(
			attribute.String("message.id", msg.ID.String()),
			attribute.String("conversation.id", msg.ConversationID.String()),
		)
	}
	return msg, err
}

func (s *Service) send(ctx context.Context, req SendRequest) (models.Message, error) {
	if err := validateContent(req.Content); err != nil {
		return models.Message{}, err
	}
	chatType, err := req.chatType()
	if err != nil {
		return models.Message{}, err
	}
	if err := s.ensureSender(ctx, req.SenderID); err != nil {
		return models.Message{}, err
	}

	conv, err := s.resolver.Resolve(ctx, ResolveRequest{
		SenderID:       req.SenderID,
		ChatType:       chatType,
		RecipientID:    req.RecipientID,
		ConversationID: req.ConversationID,
		ApartmentID:    req.ApartmentID,
	})
	if err != nil {
		return models.Message{}, err
	}

	msgType := models.MessageText
	if req.IsAnnouncement {
		msgType = models.MessageAnnouncement
	}

	stored, err := s.persist(ctx, newMessage(uuid.New(), req.SenderID, conv, req.RecipientID, req.Content, msgType, chatType, s.now()), "http")
	if err != nil {
		return models.Message{}, err
	}

	if err := s.publisher.Publish(ctx, models.RoutingMessageSent, models.NewMessageSentEvent(stored)); err != nil {
		s.log.ErrorContext(ctx, "message.sent publish failed",
			slog.String("message_id", stored.ID.String()),
			slog.String("conversation_id", stored.ConversationID.String()),
			slog.Any("error", err))
		return stored, &DeliveryError{MessageID: stored.ID, Err: err}
	}

	s.log.InfoContext(ctx, "message sent",
		slog.String("message_id", stored.ID.String()),
		slog.String("conversation_id", stored.ConversationID.String()),
		slog.String("chat_type", string(stored.ChatType)))
	return stored, nil
}

// IngestRequest is a message accepted by another service and delivered over
// the broker.
type IngestRequest struct {
	MessageID      uuid.UUID
	SenderID       uuid.UUID
	RecipientID    *uuid.UUID
	ConversationID *uuid.UUID
	ApartmentID    *uuid.UUID
	ChatType       models.ChatType
	Content        string
	MessageType    models.MessageType
	IsAnnouncement bool
	ReceivedAt     time.Time
}

// Ingest resolves and stores a received message. created is false when a
// message with the same id was already stored.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (models.Message, bool, error) {
	ctx, span := tracer.Start(ctx, "chat.Ingest")
	defer span.End()

	if err := validateContent(req.Content); err != nil {
		return models.Message{}, false, err
	}

	conv, err := s.resolver.Resolve(ctx, ResolveRequest{
		SenderID:       req.SenderID,
		ChatType:       req.ChatType,
		RecipientID:    req.RecipientID,
		ConversationID: req.ConversationID,
		ApartmentID:    req.ApartmentID,
	})
	if err != nil {
		span.RecordError(err)
		return models.Message{}, false, err
	}

	msgType := models.MessageText
	if req.IsAnnouncement || req.MessageType == models.MessageAnnouncement {
		msgType = models.MessageAnnouncement
	}

	id := req.MessageID
	if id == uuid.Nil {
		id = uuid.New()
	}
	msg := newMessage(id, req.SenderID, conv, req.RecipientID, req.Content, msgType, req.ChatType, req.ReceivedAt.UTC())

	stored, created, err := s.store.Messages.CreateMessage(ctx, msg)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, false, storeErr("store message", err)
	}
	if created {
		observability.IncMessageStored(string(stored.ChatType), "broker")
		s.notifier.BroadcastMessage(stored.ConversationID, stored)
	}
	return stored, created, nil
}

// MarkRead records a read receipt. The first read time wins.
func (s *Service) MarkRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error) {
	msg, err := s.store.Messages.MarkRead(ctx, messageID, at.UTC())
	if err != nil {
		return models.Message{}, storeErr("mark message read", err)
	}
	s.notifier.BroadcastReceipt(msg.ConversationID, "message.read", msg.ID, userID, at)
	return msg, nil
}

// MarkDelivered records a delivery receipt. The first delivery time wins.
func (s *Service) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID, at time.Time) (models.Message, error) {
	msg, err := s.store.Messages.MarkDelivered(ctx, messageID, at.UTC())
	if err != nil {
		return models.Message{}, storeErr("mark message delivered", err)
	}
	s.notifier.BroadcastReceipt(msg.ConversationID, "message.delivered", msg.ID, userID, at)
	return msg, nil
}

func (s *Service) persist(ctx context.Context, msg models.Message, source string) (models.Message, error) {
	stored, _, err := s.store.Messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, storeErr("store message", err)
	}
	observability.IncMessageStored(string(stored.ChatType), source)
	s.notifier.BroadcastMessage(stored.ConversationID, stored)
	return stored, nil
}

func (s *Service) ensureSender(ctx context.Context, senderID uuid.UUID) error {
	if senderID == uuid.Nil {
		return errs.Validation("sender is required")
	}
	exists, err := s.store.Users.UserExists(ctx, senderID)
	if err != nil {
		return errs.Transient("look up sender", err)
	}
	if exists {
		return nil
	}
	if !s.opts.AutoProvisionSenders {
		return errs.NotFound("sender not found")
	}
	if err := s.store.Users.ProvisionPlaceholder(ctx, senderID); err != nil {
		return errs.Transient("provision sender", err)
	}
	s.log.WarnContext(ctx, "provisioned placeholder sender", slog.String("user_id", senderID.String()))
	return nil
}

func newMessage(id, senderID uuid.UUID, conv models.Conversation, recipientID *uuid.UUID, content string,
	msgType models.MessageType, chatType models.ChatType, sentAt time.Time) models.Message {
	msg := models.Message{
		ID:             id,
		SenderID:       senderID,
		ConversationID: conv.ID,
		Content:        content,
		Type:           msgType,
		ChatType:       chatType,
		SentAt:         sentAt,
	}
	if chatType == models.ChatDirect {
		msg.RecipientID = recipientID
	} else {
		msg.ApartmentID = conv.ApartmentID
	}
	return msg
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return errs.Validation(fmt.Sprintf("content must be at most %d characters", models.MaxContentLength))
	}
	return nil
}

// storeErr classifies a repository error.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return errs.E(errs.KindNotFound, "conversation not found", err)
	case errors.Is(err, repositories.ErrMessageNotFound):
		return errs.E(errs.KindNotFound, "message not found", err)
	case errors.Is(err, repositories.ErrParticipantNotFound):
		return errs.E(errs.KindNotFound, "participant not found", err)
	case errors.Is(err, repositories.ErrInconsistentChatType):
		return errs.E(errs.KindValidation, "chat type does not match the conversation", err)
	case errors.Is(err, repositories.ErrApartmentConversationExists):
		return errs.E(errs.KindConflict, "apartment already has a conversation", err)
	}
	return errs.Transient(op, err)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastMessage(uuid.UUID, models.Message) {}

func (nopNotifier) BroadcastReceipt(uuid.UUID, string, uuid.UUID, uuid.UUID, time.Time) {}
