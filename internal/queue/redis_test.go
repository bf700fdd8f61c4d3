package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBroker(client, "campaign_sends", "dispatchers", 50*time.Millisecond, 0, zerolog.Nop())
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBroker_EnqueueConsumeAck(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	c, err := b.Consumer(ctx, "worker-0", 10)
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(ctx, 11))
	require.NoError(t, b.Enqueue(ctx, 12))

	d1, t1 := nextTask(t, c)
	d2, t2 := nextTask(t, c)
	assert.Equal(t, 11, t1.MessageID)
	assert.Equal(t, 12, t2.MessageID)

	pending, err := b.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	require.NoError(t, d1.Ack())
	require.NoError(t, d2.Ack())

	pending, err = b.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedisBroker_NackRequeueRedelivers(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	c, err := b.Consumer(ctx, "worker-0", 1)
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(ctx, 5))

	d, _ := nextTask(t, c)
	require.NoError(t, d.Nack(true))

	d, task := nextTask(t, c)
	assert.Equal(t, 5, task.MessageID)
	require.NoError(t, d.Ack())

	pending, err := b.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedisBroker_NackDropAcknowledges(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	c, _ := b.Consumer(ctx, "worker-0", 1)
	require.NoError(t, b.Enqueue(ctx, 5))

	d, _ := nextTask(t, c)
	require.NoError(t, d.Nack(false))

	pending, err := b.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = c.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisBroker_ConsumersShareGroup(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	c1, err := b.Consumer(ctx, "worker-0", 1)
	require.NoError(t, err)
	c2, err := b.Consumer(ctx, "worker-1", 1)
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(ctx, 1))
	require.NoError(t, b.Enqueue(ctx, 2))

	d1, t1 := nextTask(t, c1)
	d2, t2 := nextTask(t, c2)
	assert.ElementsMatch(t, []int{1, 2}, []int{t1.MessageID, t2.MessageID})
	require.NoError(t, d1.Ack())
	require.NoError(t, d2.Ack())
}

func TestRedisBroker_ExistingGroupIsReused(t *testing.T) {
	b, mr := setupRedisBroker(t)
	ctx := context.Background()

	other := NewRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "campaign_sends", "dispatchers", 50*time.Millisecond, 0, zerolog.Nop())
	defer other.Close()

	_, err := b.Consumer(ctx, "worker-0", 1)
	require.NoError(t, err)
	_, err = other.Consumer(ctx, "worker-1", 1)
	require.NoError(t, err)
}
