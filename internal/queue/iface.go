package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Consumer.Next once the broker or consumer has
// been closed.
var ErrClosed = errors.New("queue closed")

// Enqueuer publishes one dispatch task per message id.
type Enqueuer interface {
	Enqueue(ctx context.Context, messageID int) error
}

// Broker is a durable dispatch queue. Items stay owned by the broker until a
// consumer acknowledges them; unacknowledged items are redelivered.
type Broker interface {
	Enqueuer
	// Consumer opens a consumer that holds at most prefetch unacknowledged
	// deliveries at a time.
	Consumer(ctx context.Context, name string, prefetch int) (Consumer, error)
	Close() error
}

// Consumer hands out deliveries one at a time. It is not safe for
// concurrent use; each worker owns its own consumer.
type Consumer interface {
	Next(ctx context.Context) (*Delivery, error)
	Close() error
}

// Delivery is one received queue item. Exactly one of Ack or Nack must be
// called once the item has been handled.
type Delivery struct {
	ID   string
	Body []byte

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery wraps a received item with its acknowledgment callbacks.
func NewDelivery(id string, body []byte, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{ID: id, Body: body, ack: ack, nack: nack}
}

// Ack removes the item from the queue.
func (d *Delivery) Ack() error { return d.ack() }

// Nack rejects the item. With requeue the item is delivered again later,
// otherwise it is discarded.
func (d *Delivery) Nack(requeue bool) error { return d.nack(requeue) }
