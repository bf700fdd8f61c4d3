package worker

import (
	"math"
	"time"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
)

// RetryPolicy bounds delivery attempts for one queue item and spaces them
// with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // wait after the first failed attempt
	Factor      float64       // backoff multiplier
	MaxDelay    time.Duration // backoff cap
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
	}
}

// RetryPolicyFrom builds a RetryPolicy from worker configuration, falling
// back to the defaults for unset values.
func RetryPolicyFrom(cfg config.WorkerConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBase > 0 {
		p.BaseDelay = cfg.BackoffBase
	}
	if cfg.BackoffFactor >= 1 {
		p.Factor = cfg.BackoffFactor
	}
	if cfg.BackoffMax > 0 {
		p.MaxDelay = cfg.BackoffMax
	}
	return p
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of failed attempts.
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Backoff returns the wait after failed attempt n (1-based):
// min(BaseDelay * Factor^(n-1), MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
