package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
)

// RedisBroker is a dispatch queue on a Redis stream read through a consumer
// group. Entries stay in the group's pending list until XACK; entries left
// idle by a dead consumer are reclaimed with XAUTOCLAIM.
type RedisBroker struct {
	client       *redis.Client
	stream       string
	group        string
	blockTimeout time.Duration
	claimIdle    time.Duration
	log          zerolog.Logger

	groupOnce sync.Once
	groupErr  error
}

// NewRedisBroker creates a RedisBroker on the given stream. A claimIdle of
// zero disables reclaiming abandoned entries.
func NewRedisBroker(client *redis.Client, stream, group string, blockTimeout, claimIdle time.Duration, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client:       client,
		stream:       stream,
		group:        group,
		blockTimeout: blockTimeout,
		claimIdle:    claimIdle,
		log:          log.With().Str("component", "redis_queue").Str("stream", stream).Logger(),
	}
}

// Enqueue adds a task to the stream using XADD.
func (b *RedisBroker) Enqueue(ctx context.Context, messageID int) error {
	body, err := EncodeTask(messageID, time.Now())
	if err != nil {
		return err
	}
	if err := b.add(ctx, body); err != nil {
		return err
	}
	metrics.MessagesEnqueuedTotal.WithLabelValues("redis").Inc()
	return nil
}

func (b *RedisBroker) add(ctx context.Context, body []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{"data": string(body)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to stream %s: %w", b.stream, err)
	}
	return nil
}

// ensureGroup creates the consumer group (and the stream) once. An existing
// group is not an error.
func (b *RedisBroker) ensureGroup(ctx context.Context) error {
	b.groupOnce.Do(func() {
		err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			b.groupErr = fmt.Errorf("create consumer group %s on stream %s: %w", b.group, b.stream, err)
		}
	})
	return b.groupErr
}

func (b *RedisBroker) Consumer(ctx context.Context, name string, prefetch int) (Consumer, error) {
	if err := b.ensureGroup(ctx); err != nil {
		return nil, err
	}
	if prefetch < 1 {
		prefetch = 1
	}
	return &redisConsumer{b: b, name: name, prefetch: int64(prefetch)}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Pending returns the number of entries delivered to the group but not yet
// acknowledged.
func (b *RedisBroker) Pending(ctx context.Context) (int64, error) {
	p, err := b.client.XPending(ctx, b.stream, b.group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending %s: %w", b.stream, err)
	}
	return p.Count, nil
}

func (b *RedisBroker) ack(ctx context.Context, entryID string) error {
	if err := b.client.XAck(ctx, b.stream, b.group, entryID).Err(); err != nil {
		return fmt.Errorf("xack message %s on stream %s: %w", entryID, b.stream, err)
	}
	return nil
}

type redisConsumer struct {
	b        *RedisBroker
	name     string
	prefetch int64
	buf      []redis.XMessage
}

func (c *redisConsumer) Next(ctx context.Context) (*Delivery, error) {
	for len(c.buf) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.fill(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}
	}

	xMsg := c.buf[0]
	c.buf = c.buf[1:]
	return c.delivery(xMsg), nil
}

// fill loads up to prefetch entries: abandoned ones first, then new ones.
func (c *redisConsumer) fill(ctx context.Context) error {
	if c.b.claimIdle > 0 {
		claimed, _, err := c.b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.b.stream,
			Group:    c.b.group,
			Consumer: c.name,
			MinIdle:  c.b.claimIdle,
			Start:    "0-0",
			Count:    c.prefetch,
		}).Result()
		if err != nil {
			return fmt.Errorf("xautoclaim on stream %s: %w", c.b.stream, err)
		}
		if len(claimed) > 0 {
			c.b.log.Info().Str("consumer", c.name).Int("count", len(claimed)).Msg("reclaimed idle entries")
			c.buf = append(c.buf, claimed...)
			return nil
		}
	}

	streams, err := c.b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.b.group,
		Consumer: c.name,
		Streams:  []string{c.b.stream, ">"},
		Count:    c.prefetch,
		Block:    c.b.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("xreadgroup on stream %s: %w", c.b.stream, err)
	}
	for _, s := range streams {
		c.buf = append(c.buf, s.Messages...)
	}
	return nil
}

func (c *redisConsumer) delivery(xMsg redis.XMessage) *Delivery {
	data, _ := xMsg.Values["data"].(string)
	entryID := xMsg.ID
	return &Delivery{
		ID:   entryID,
		Body: []byte(data),
		ack: func() error {
			return c.b.ack(context.Background(), entryID)
		},
		nack: func(requeue bool) error {
			ctx := context.Background()
			if requeue {
				// A stream entry cannot be released back to the group, so a
				// copy is appended before the original is acknowledged.
				if err := c.b.add(ctx, []byte(data)); err != nil {
					return err
				}
			}
			return c.b.ack(ctx, entryID)
		},
	}
}

// Close drops prefetched entries. They stay in the group's pending list and
// are reclaimed by XAUTOCLAIM once idle.
func (c *redisConsumer) Close() error {
	c.buf = nil
	return nil
}
