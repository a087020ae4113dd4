package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrBrokerClosed = errors.New("rabbitmq broker closed")

// Broker owns the process-wide AMQP connection. Publishers and consume loops
// each take their own channel from it. Close must be called on shutdown.
type Broker struct {
	url  string
	log  *slog.Logger
	dial func(url string) (*amqp.Connection, error)
	done chan struct{}

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

func newBroker(url string, log *slog.Logger) *Broker {
	return &Broker{url: url, log: log, dial: amqp.Dial, done: make(chan struct{})}
}

// Dial connects to the broker, retrying with exponential backoff until
// maxWait elapses or ctx is cancelled.
func Dial(ctx context.Context, url string, maxWait time.Duration, log *slog.Logger) (*Broker, error) {
	b := newBroker(url, log)
	conn, err := b.connect(ctx, maxWait)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	return b, nil
}

// connect dials with backoff. It gives up when maxWait elapses, ctx is
// cancelled or the broker is closed. It never holds b.mu.
func (b *Broker) connect(ctx context.Context, maxWait time.Duration) (*amqp.Connection, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait

	var conn *amqp.Connection
	op := func() error {
		var err error
		conn, err = b.dial(b.url)
		if err != nil {
			b.log.Warn("rabbitmq dial failed", slog.Any("error", err))
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		select {
		case <-b.done:
			return nil, ErrBrokerClosed
		default:
		}
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	b.log.Info("rabbitmq connected")
	return conn, nil
}

// Channel opens a new channel, re-dialing first if the connection dropped.
// Close interrupts a re-dial in progress.
func (b *Broker) Channel(ctx context.Context) (*amqp.Channel, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	conn := b.conn
	b.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		fresh, err := b.connect(ctx, time.Minute)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		switch {
		case b.closed:
			b.mu.Unlock()
			_ = fresh.Close()
			return nil, ErrBrokerClosed
		case b.conn != conn && b.conn != nil && !b.conn.IsClosed():
			// another caller reconnected first
			_ = fresh.Close()
		default:
			b.conn = fresh
		}
		conn = b.conn
		b.mu.Unlock()
	}
	return conn.Channel()
}

// Close shuts the connection down. Channels opened from it are closed too.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
