package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Policy controls the exponential backoff schedule for delivery attempts.
type Policy struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultPolicy matches the send-side defaults: at most three attempts with
// doubling delays starting at half a second.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
}

func New(policy Policy) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2.0
	}
	return &Retrier{policy: policy}
}

// Do runs op until it succeeds, the attempt limit is reached, or the
// context is cancelled. Every failure is retried.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	return r.DoIf(ctx, op, func(error) bool { return true })
}

// DoIf runs op with backoff but only retries errors the predicate accepts.
// A rejected error is returned immediately with no further attempts.
func (r *Retrier) DoIf(ctx context.Context, op func() error, retryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delayFor(attempt)):
		}
	}

	return lastErr
}

// DelayFor exposes the schedule for monitoring and tests.
func (r *Retrier) DelayFor(attempt int) time.Duration {
	return r.delayFor(attempt)
}

func (r *Retrier) delayFor(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.policy.Multiplier
	}
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		// Spread delays by up to 25% either way so concurrent routes do not
		// hammer a rate-limited platform in lockstep.
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter
		if delay < 0 {
			delay = float64(r.policy.InitialDelay)
		}
		if delay > float64(r.policy.MaxDelay) {
			delay = float64(r.policy.MaxDelay)
		}
	}

	return time.Duration(delay)
}

func secureFloat64() float64 {
	limit := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
