package workflow

import (
	"fmt"
	"time"
)

// BackoffStrategy selects how the retry delay grows across attempts.
type BackoffStrategy string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffLinear waits BaseDelay multiplied by the attempt number.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential doubles the delay with every attempt.
	BackoffExponential BackoffStrategy = "exponential"
)

// Valid reports whether the strategy is one of the known variants.
func (b BackoffStrategy) Valid() bool {
	switch b {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		return true
	default:
		return false
	}
}

// RetryPolicy controls how often and how quickly a failed task is retried.
// It is immutable once the task begins executing.
type RetryPolicy struct {
	// MaxAttempts is the total number of executions allowed, including the
	// first one. Must be at least 1.
	MaxAttempts int
	Backoff     BackoffStrategy
	BaseDelay   time.Duration
	// MaxDelay clamps the computed delay regardless of strategy.
	MaxDelay time.Duration
	// Jitter multiplies the clamped delay by a uniform draw from [0.5, 1.0]
	// to spread out retry storms. The random source is injected by the
	// orchestrator so tests stay deterministic.
	Jitter bool
}

// DefaultRetryPolicy returns the standard policy: three attempts with
// exponential backoff from one second, capped at five minutes, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffExponential,
		BaseDelay:   time.Second,
		MaxDelay:    300 * time.Second,
		Jitter:      true,
	}
}

// Validate rejects policies with unknown strategies or nonsensical bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if !p.Backoff.Valid() {
		return fmt.Errorf("retry policy: unknown backoff strategy %q", p.Backoff)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry policy: base delay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry policy: max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Delay computes the backoff delay before jitter for the given 1-based
// attempt number, clamped to MaxDelay. Exponential growth saturates at
// MaxDelay rather than overflowing.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch p.Backoff {
	case BackoffFixed:
		d = p.BaseDelay
	case BackoffLinear:
		d = p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		if attempt > 32 {
			return p.MaxDelay
		}
		d = p.BaseDelay * time.Duration(1<<(attempt-1))
	default:
		d = p.BaseDelay
	}

	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
