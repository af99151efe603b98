package amqpbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
)

// ConfirmChannel is the subset of *amqp.Channel the publisher needs.
type ConfirmChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// DefaultConfirmTimeout bounds the wait for one broker confirm.
const DefaultConfirmTimeout = 5 * time.Second

// Publisher publishes persistent messages and waits for each confirm.
// Publishes are serialized so confirms arrive in publish order. Confirms are
// matched by delivery tag: one that arrives after its publish gave up waiting
// is discarded by the next publish instead of being taken as its own.
type Publisher struct {
	ch       ConfirmChannel
	confirms chan amqp.Confirmation
	exchange string
	timeout  time.Duration

	mu sync.Mutex
	// published is the delivery tag of the last accepted publish. The broker
	// numbers publishes on a confirm channel from 1.
	published uint64
}

// NewPublisher puts ch in confirm mode. The pubsub argument of Publish is
// ignored; every event goes to exchange with the topic as routing key.
func NewPublisher(ch ConfirmChannel, exchange string, confirmTimeout time.Duration) (*Publisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &Publisher{ch: ch, confirms: confirms, exchange: exchange, timeout: confirmTimeout}, nil
}

func (p *Publisher) Publish(ctx context.Context, _, topic string, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Headers:      amqp.Table{attemptHeader: int32(1)},
		Body:         event.Marshal(e),
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, topic, false, false, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", bus.ErrPublishFailed, err)
	}

	p.published++
	tag := p.published

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("%w: channel closed", bus.ErrPublishFailed)
			}
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return fmt.Errorf("%w: %w (tag %d)", bus.ErrPublishFailed, ErrNacked, c.DeliveryTag)
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("%w: %w", bus.ErrPublishFailed, ErrConfirmTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
