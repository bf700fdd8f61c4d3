package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/campaign-dispatcher/internal/errors"
)

// Sender delivers one message to its recipient.
type Sender interface {
	Send(ctx context.Context, messageID int) error
}

// SimulatedSender stands in for a real channel provider. Each call fails
// with ErrTransientDelivery with probability FailureRate.
type SimulatedSender struct {
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
	log zerolog.Logger
}

// NewSimulatedSender creates a SimulatedSender. A nil rng uses the global
// source.
func NewSimulatedSender(failureRate float64, rng *rand.Rand, log zerolog.Logger) *SimulatedSender {
	return &SimulatedSender{
		FailureRate: failureRate,
		rng:         rng,
		log:         log.With().Str("component", "simulated_sender").Logger(),
	}
}

func (s *SimulatedSender) Send(ctx context.Context, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.roll() < s.FailureRate {
		return fmt.Errorf("deliver message %d: %w", messageID, appErrors.ErrTransientDelivery)
	}
	s.log.Debug().Int("message_id", messageID).Msg("message delivered")
	return nil
}

func (s *SimulatedSender) roll() float64 {
	if s.rng == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}
