package channel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/operate-experience/navsync/pkg/types"
)

// Default retry policy.
const (
	DefaultInitialDelay = 5 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitter       = 0.2
)

// DefaultRetry returns the default reconnection policy: capped exponential
// backoff starting at five seconds, retrying forever.
func DefaultRetry() types.RetryConfig {
	return types.RetryConfig{
		InitialDelay: types.Duration(DefaultInitialDelay),
		MaxDelay:     types.Duration(DefaultMaxDelay),
		Multiplier:   DefaultMultiplier,
		Jitter:       DefaultJitter,
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseRetrying
	phaseConnected
)

func (p phase) String() string {
	switch p {
	case phaseRetrying:
		return "retrying"
	case phaseConnected:
		return "connected"
	default:
		return "idle"
	}
}

// supervisor decides when the run loop reconnects.
// It is owned by a single run goroutine and is not safe for concurrent use.
type supervisor struct {
	policy   types.RetryConfig
	backoff  backoff.BackOff
	phase    phase
	attempts int
}

func newSupervisor(policy types.RetryConfig) *supervisor {
	def := DefaultRetry()
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = def.InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = def.Multiplier
	}
	if policy.Jitter < 0 || policy.Jitter >= 1 {
		policy.Jitter = def.Jitter
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialDelay.Std()
	b.MaxInterval = policy.MaxDelay.Std()
	b.MaxElapsedTime = 0 // never stop on elapsed time
	b.RandomizationFactor = policy.Jitter
	b.Multiplier = policy.Multiplier
	b.Reset()

	var bo backoff.BackOff = b
	if policy.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts))
	}

	return &supervisor{policy: policy, backoff: bo}
}

// connected records a successful open and resets the backoff.
func (s *supervisor) connected() {
	s.phase = phaseConnected
	s.attempts = 0
	s.backoff.Reset()
}

// failed records a failure and returns the delay before the next attempt.
// ok is false once the attempt budget is spent.
func (s *supervisor) failed() (delay time.Duration, ok bool) {
	delay = s.backoff.NextBackOff()
	if delay == backoff.Stop {
		s.phase = phaseIdle
		return 0, false
	}
	s.phase = phaseRetrying
	s.attempts++
	return delay, true
}

// stop records that the loop is ending.
func (s *supervisor) stop() {
	s.phase = phaseIdle
}

// wait sleeps for delay. It returns false if ctx ends first, in which
// case no further attempt must be made.
func (s *supervisor) wait(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		s.phase = phaseIdle
		return false
	case <-t.C:
		return true
	}
}
