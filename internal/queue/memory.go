package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
)

type memoryItem struct {
	id   string
	body []byte
}

// InMemoryQueue is an in-process broker with the same late-ack contract as
// the durable backends. Items are lost when the process exits.
type InMemoryQueue struct {
	mu      sync.Mutex
	pending []memoryItem
	unacked map[string]memoryItem
	seq     int
	closed  bool
	notify  chan struct{}
	log     zerolog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		unacked: make(map[string]memoryItem),
		notify:  make(chan struct{}, 1),
		log:     log.With().Str("component", "memory_queue").Logger(),
	}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, messageID int) error {
	body, err := EncodeTask(messageID, time.Now())
	if err != nil {
		return err
	}
	return q.publish(body)
}

func (q *InMemoryQueue) publish(body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	q.pending = append(q.pending, memoryItem{id: strconv.Itoa(q.seq), body: body})
	q.signal()
	q.mu.Unlock()

	metrics.MessagesEnqueuedTotal.WithLabelValues("memory").Inc()
	return nil
}

// signal must be called with mu held.
func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports items waiting for delivery and items delivered but not yet
// acknowledged.
func (q *InMemoryQueue) Len() (pending, unacked int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.unacked)
}

// Consumer ignores prefetch: deliveries are handed out one at a time.
func (q *InMemoryQueue) Consumer(ctx context.Context, name string, prefetch int) (Consumer, error) {
	return &memoryConsumer{q: q}, nil
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	q.log.Debug().Int("pending", len(q.pending)).Int("unacked", len(q.unacked)).Msg("memory queue closed")
	return nil
}

func (q *InMemoryQueue) take() (memoryItem, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return memoryItem{}, false, true
	}
	if len(q.pending) == 0 {
		return memoryItem{}, false, false
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.unacked[item.id] = item
	if len(q.pending) > 0 {
		q.signal()
	}
	return item, true, false
}

func (q *InMemoryQueue) settle(id string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.unacked[id]
	if !ok {
		return nil
	}
	delete(q.unacked, id)
	if requeue && !q.closed {
		q.pending = append(q.pending, item)
		q.signal()
	}
	return nil
}

type memoryConsumer struct {
	q *InMemoryQueue
}

func (c *memoryConsumer) Next(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, ok, closed := c.q.take()
		if closed {
			return nil, ErrClosed
		}
		if ok {
			id := item.id
			return &Delivery{
				ID:   id,
				Body: item.body,
				ack:  func() error { return c.q.settle(id, false) },
				nack: func(requeue bool) error { return c.q.settle(id, requeue) },
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, open := <-c.q.notify:
			if !open {
				return nil, ErrClosed
			}
		}
	}
}

func (c *memoryConsumer) Close() error { return nil }
