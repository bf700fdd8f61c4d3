package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
)

// Store records delivery outcomes.
type Store interface {
	MarkSent(ctx context.Context, messageID int) error
	MarkFailed(ctx context.Context, messageID int) error
}

// Config sizes the worker pool.
type Config struct {
	Workers            int
	RatePerSecond      float64 // per worker; 0 disables the delay
	PrefetchMultiplier int
	ShutdownTimeout    time.Duration
}

// ConfigFrom maps worker configuration onto a pool Config.
func ConfigFrom(cfg config.WorkerConfig) Config {
	return Config{
		Workers:            cfg.Count,
		RatePerSecond:      cfg.RatePerSecond,
		PrefetchMultiplier: cfg.PrefetchMultiplier,
		ShutdownTimeout:    cfg.ShutdownTimeout,
	}
}

// Pool runs a fixed number of delivery workers. Each worker owns one queue
// consumer and handles one delivery at a time: send with retries, record the
// outcome, then acknowledge.
type Pool struct {
	broker queue.Broker
	store  Store
	sender Sender
	retry  RetryPolicy
	config Config
	log    zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(broker queue.Broker, store Store, sender Sender, retry RetryPolicy, cfg Config, log zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PrefetchMultiplier < 1 {
		cfg.PrefetchMultiplier = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Pool{
		broker: broker,
		store:  store,
		sender: sender,
		retry:  retry,
		config: cfg,
		log:    log.With().Str("component", "worker_pool").Logger(),
		sleep:  sleepCtx,
	}
}

// Start opens one consumer per worker and launches the worker goroutines.
// No worker is started when any consumer cannot be opened.
func (p *Pool) Start(ctx context.Context) error {
	consumers := make([]queue.Consumer, 0, p.config.Workers)
	for i := range p.config.Workers {
		c, err := p.broker.Consumer(ctx, fmt.Sprintf("worker-%d", i), p.config.PrefetchMultiplier)
		if err != nil {
			for _, opened := range consumers {
				_ = opened.Close()
			}
			return fmt.Errorf("open consumer for worker-%d: %w", i, err)
		}
		consumers = append(consumers, c)
	}

	ctx, p.cancel = context.WithCancel(ctx)

	for i, c := range consumers {
		p.wg.Add(1)
		go p.runWorker(ctx, fmt.Sprintf("worker-%d", i), c)
	}

	p.log.Info().
		Int("worker_count", p.config.Workers).
		Float64("rate_per_sec", p.config.RatePerSecond).
		Int("prefetch", p.config.PrefetchMultiplier).
		Int("max_attempts", p.retry.MaxAttempts).
		Msg("worker pool started")
	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for them to finish. Deliveries interrupted by the stop are
// returned to the queue.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.ShutdownTimeout):
		p.log.Warn().Msg("worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", p.config.ShutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine.
func (p *Pool) runWorker(ctx context.Context, name string, consumer queue.Consumer) {
	defer p.wg.Done()
	defer consumer.Close()

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	log := p.log.With().Str("consumer", name).Logger()
	log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopping")
			return
		default:
		}

		d, err := consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				log.Info().Msg("worker stopping")
				return
			}
			log.Error().Err(err).Msg("receive failed")
			if p.sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		p.handle(ctx, log, d)
	}
}

// handle processes one delivery. The message's stored status is updated
// before the delivery is acknowledged; when that update fails the delivery
// is requeued so the outcome is never lost.
func (p *Pool) handle(ctx context.Context, log zerolog.Logger, d *queue.Delivery) {
	start := time.Now()
	defer func() { metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds()) }()

	task, err := queue.DecodeTask(d.Body)
	if err != nil {
		log.Error().Err(err).Str("delivery_id", d.ID).Msg("dropping malformed task")
		p.settle(log, d, true, false, "dropped")
		return
	}
	log = log.With().Int("message_id", task.MessageID).Logger()

	attempts, sendErr := p.deliver(ctx, log, task.MessageID)
	if sendErr != nil && ctx.Err() != nil {
		log.Info().Int("attempts", attempts).Msg("interrupted by shutdown, requeueing")
		p.settle(log, d, false, true, "requeued")
		return
	}

	// The send has happened; record it even if shutdown starts now.
	storeCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		if err := p.store.MarkSent(storeCtx, task.MessageID); err != nil {
			log.Error().Err(err).Msg("failed to mark message sent, requeueing")
			p.settle(log, d, false, true, "requeued")
			return
		}
		p.settle(log, d, true, false, "sent")
		return
	}

	log.Warn().Err(sendErr).Int("attempts", attempts).Msg("delivery failed permanently")
	if err := p.store.MarkFailed(storeCtx, task.MessageID); err != nil {
		log.Error().Err(err).Msg("failed to mark message failed, requeueing")
		p.settle(log, d, false, true, "requeued")
		return
	}
	p.settle(log, d, true, false, "failed")
}

// deliver sends the message, retrying transient failures per the retry
// policy. Every attempt is preceded by the per-worker rate delay. It returns
// the number of attempts made and the last error.
func (p *Pool) deliver(ctx context.Context, log zerolog.Logger, messageID int) (int, error) {
	for attempt := 1; ; attempt++ {
		if err := p.sleep(ctx, p.rateDelay()); err != nil {
			return attempt - 1, err
		}

		err := p.sender.Send(ctx, messageID)
		if err == nil {
			metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		if !errors.Is(err, appErrors.ErrTransientDelivery) {
			metrics.DeliveryAttemptsTotal.WithLabelValues("error").Inc()
			return attempt, err
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues("transient").Inc()

		if !p.retry.ShouldRetry(attempt) {
			return attempt, err
		}

		backoff := p.retry.Backoff(attempt)
		log.Info().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("scheduling retry")
		if err := p.sleep(ctx, backoff); err != nil {
			return attempt, err
		}
	}
}

func (p *Pool) rateDelay() time.Duration {
	if p.config.RatePerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.config.RatePerSecond)
}

func (p *Pool) settle(log zerolog.Logger, d *queue.Delivery, ack, requeue bool, status string) {
	var err error
	if ack {
		err = d.Ack()
	} else {
		err = d.Nack(requeue)
	}
	if err != nil {
		log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to settle delivery")
	}
	metrics.MessagesProcessedTotal.WithLabelValues(status).Inc()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewPoolFromConfig wires a pool with the simulated sender and the
// configured retry policy.
func NewPoolFromConfig(broker queue.Broker, store Store, cfg config.WorkerConfig, log zerolog.Logger) *Pool {
	sender := NewSimulatedSender(cfg.FailureRate, nil, log)
	return NewPool(broker, store, sender, RetryPolicyFrom(cfg), ConfigFrom(cfg), log)
}
