package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"condo-chat/internal/events"
	"condo-chat/internal/observability"
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// DeliveryHandler settles one inbound delivery.
type DeliveryHandler interface {
	Handle(ctx context.Context, d events.Delivery) events.Result
}

type ConsumerConfig struct {
	Exchange    string
	Queue       string
	RoutingKeys []string
	// DeadLetterExchange is set as x-dead-letter-exchange on the queue.
	DeadLetterExchange string
	// MaxRedeliveries rejects a malformed delivery without requeue once the
	// broker's x-delivery-count reaches it. Zero disables the guard. Only
	// quorum queues count deliveries, so a non-zero value declares Queue as
	// quorum. An existing classic queue of the same name must be migrated
	// first or the declare fails with PRECONDITION_FAILED.
	MaxRedeliveries int
	Tag             string
}

// Consumer runs the single consume loop of the service. Deliveries are
// processed one at a time.
type Consumer struct {
	broker  *Broker
	cfg     ConsumerConfig
	handler DeliveryHandler
	log     *slog.Logger
}

func NewConsumer(broker *Broker, cfg ConsumerConfig, handler DeliveryHandler, log *slog.Logger) *Consumer {
	return &Consumer{broker: broker, cfg: cfg, handler: handler, log: log}
}

// Run consumes until ctx is cancelled, re-subscribing with backoff whenever
// the channel is lost.
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		ch, deliveries, err := c.subscribe(ctx)
		if err == nil {
			bo.Reset()
			c.log.Info("consumer subscribed",
				slog.String("queue", c.cfg.Queue), slog.Any("routing_keys", c.cfg.RoutingKeys))
			err = c.Consume(ctx, deliveries)
			_ = ch.Close()
		}
		if ctx.Err() != nil {
			c.log.Info("consumer stopped")
			return nil
		}
		if errors.Is(err, ErrBrokerClosed) {
			return err
		}

		wait := bo.NextBackOff()
		c.log.Warn("consumer interrupted, resubscribing", slog.Any("error", err), slog.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.broker.Channel(ctx)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*amqp.Channel, <-chan amqp.Delivery, error) {
		_ = ch.Close()
		return nil, nil, err
	}

	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, queueArgs(c.cfg))
	if err != nil {
		return fail(err)
	}
	for _, key := range c.cfg.RoutingKeys {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail(err)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fail(err)
	}

	deliveries, err := ch.Consume(q.Name, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fail(err)
	}
	return ch, deliveries, nil
}

func queueArgs(cfg ConsumerConfig) amqp.Table {
	args := amqp.Table{}
	if cfg.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = cfg.DeadLetterExchange
	}
	if cfg.MaxRedeliveries > 0 {
		args["x-queue-type"] = "quorum"
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// Consume processes deliveries until ctx is cancelled or the channel closes.
// A delivery that is already being handled finishes and is settled even when
// ctx is cancelled meanwhile.
func (c *Consumer) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.Process(context.WithoutCancel(ctx), d)
		}
	}
}

// Process handles one delivery and acks, nacks or rejects it.
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) events.Outcome {
	start := time.Now()
	res := c.handler.Handle(ctx, events.Delivery{
		RoutingKey: d.RoutingKey,
		MessageID:  d.MessageId,
		Body:       d.Body,
	})

	outcome := res.Outcome.String()
	var err error
	switch res.Outcome {
	case events.Success, events.RejectPermanently:
		err = d.Ack(false)
	default:
		if res.Malformed && c.exhausted(d) {
			outcome = "dead_letter"
			c.log.Error("malformed event exceeded redeliveries, rejecting",
				slog.String("routing_key", d.RoutingKey), slog.String("message_id", d.MessageId))
			err = d.Reject(false)
		} else {
			err = d.Nack(false, true)
		}
	}
	if err != nil {
		c.log.Error("settle delivery failed",
			slog.String("routing_key", d.RoutingKey), slog.String("outcome", outcome), slog.Any("error", err))
	}

	observability.ObserveConsumed(d.RoutingKey, outcome, time.Since(start))
	return res.Outcome
}

func (c *Consumer) exhausted(d amqp.Delivery) bool {
	if c.cfg.MaxRedeliveries <= 0 {
		return false
	}
	return deliveryCount(d.Headers) >= int64(c.cfg.MaxRedeliveries)
}

// deliveryCount reads x-delivery-count, set by quorum queues on redelivery.
func deliveryCount(headers amqp.Table) int64 {
	switch v := headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint8:
		return int64(v)
	}
	return 0
}
