package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"condo-chat/internal/observability"
	"condo-chat/internal/telemetry"
)

// Publisher publishes JSON domain events to the topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when the broker is disabled.
func NewPublisher(ctx context.Context, broker *Broker, exchange string, log *slog.Logger) Publisher {
	if broker == nil {
		log.Warn("rabbitmq disabled, using noop publisher", slog.String("reason", "empty amqp url"))
		return noopPublisher{reason: "empty amqp url", log: log}
	}

	p := &amqpPublisher{broker: broker, exchange: exchange, log: log}
	if err := p.ensureChannel(ctx); err != nil {
		log.Warn("rabbitmq disabled, using noop publisher", slog.Any("error", err))
		return noopPublisher{reason: err.Error(), log: log}
	}

	log.Info("rabbitmq publisher ready", slog.String("exchange", exchange))
	return p
}

type amqpPublisher struct {
	broker   *Broker
	exchange string
	log      *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func (p *amqpPublisher) ensureChannel(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	ch, err := p.broker.Channel(ctx)
	if err != nil {
		return err
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		return err
	}
	p.ch = ch
	return nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	if err := p.ensureChannel(ctx); err != nil {
		observability.IncAMQPPublishError(routingKey)
		return fmt.Errorf("open publish channel: %w", err)
	}

	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError(routingKey)
		p.log.Error("rabbitmq publish failed", slog.String("routing_key", routingKey), slog.Any("error", err))
		return err
	}
	observability.IncAMQPPublished(routingKey)
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func (n noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		n.log.Debug("rabbitmq noop publish", slog.String("routing_key", routingKey),
			slog.String("event_type", envelope.EventType), slog.String("request_id", envelope.RequestID))
	default:
		n.log.Debug("rabbitmq noop publish", slog.String("routing_key", routingKey))
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
