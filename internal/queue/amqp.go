package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
)

// AMQPBroker is a dispatch queue on a durable RabbitMQ queue. Deliveries are
// consumed with autoAck off, so anything a dead worker never acknowledged is
// redelivered by the broker.
type AMQPBroker struct {
	conn  *amqp.Connection
	queue string
	log   zerolog.Logger

	mu    sync.Mutex // guards pubCh
	pubCh *amqp.Channel
}

// NewAMQPBroker dials RabbitMQ and declares the durable queue.
func NewAMQPBroker(url, queue string, log zerolog.Logger) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPBroker{
		conn:  conn,
		queue: queue,
		log:   log.With().Str("component", "amqp_queue").Str("queue", queue).Logger(),
		pubCh: ch,
	}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// Enqueue publishes a persistent task to the queue.
func (b *AMQPBroker) Enqueue(ctx context.Context, messageID int) error {
	body, err := EncodeTask(messageID, time.Now())
	if err != nil {
		return err
	}

	b.mu.Lock()
	err = b.pubCh.Publish(
		"",
		b.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message %d: %w", messageID, err)
	}

	metrics.MessagesEnqueuedTotal.WithLabelValues("amqp").Inc()
	return nil
}

// Consumer opens a dedicated channel limited to prefetch unacknowledged
// deliveries.
func (b *AMQPBroker) Consumer(ctx context.Context, name string, prefetch int) (Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := declare(ch, b.queue); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		b.queue,
		name,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("register consumer %s: %w", name, err)
	}

	b.log.Debug().Str("consumer", name).Int("prefetch", prefetch).Msg("consumer registered")
	return &amqpConsumer{ch: ch, name: name, msgs: msgs}, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pubCh.Close(); err != nil {
		b.log.Warn().Err(err).Msg("close publish channel")
	}
	return b.conn.Close()
}

type amqpConsumer struct {
	ch   *amqp.Channel
	name string
	msgs <-chan amqp.Delivery
}

func (c *amqpConsumer) Next(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-c.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return &Delivery{
			ID:   fmt.Sprintf("%s/%d", c.name, d.DeliveryTag),
			Body: d.Body,
			ack:  func() error { return d.Ack(false) },
			nack: func(requeue bool) error { return d.Nack(false, requeue) },
		}, nil
	}
}

// Close cancels the consumer; unacknowledged deliveries return to the queue.
func (c *amqpConsumer) Close() error {
	if err := c.ch.Cancel(c.name, false); err != nil {
		c.ch.Close()
		return fmt.Errorf("cancel consumer %s: %w", c.name, err)
	}
	return c.ch.Close()
}
