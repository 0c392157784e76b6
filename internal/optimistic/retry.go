// Package optimistic implements the retry-on-conflict loop shared by every
// aggregate mutation: read current state, compute the next one, write with an
// expected version, and start over from a fresh read when the write loses the
// race. The loop body must be free of side effects beyond its single write.
package optimistic

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type Policy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 5ms
	MaxBackoff time.Duration // default 200ms
	JitterFrac float64       // default 0.20
}

type Retrier struct {
	policy Policy
}

func NewRetrier(policy Policy) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.MinBackoff <= 0 {
		policy.MinBackoff = 5 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 200 * time.Millisecond
	}
	if policy.JitterFrac <= 0 {
		policy.JitterFrac = 0.20
	}
	return &Retrier{policy: policy}
}

// Run executes fn until it returns a non-retryable result or attempts are
// exhausted. Conflicts are absorbed here and never surface to callers except
// as the final error after exhaustion.
func (r *Retrier) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if werr := r.wait(ctx, attempt); werr != nil {
				return werr
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if r.policy.Retryable == nil || !r.policy.Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("optimistic retry attempts exhausted: %w", err)
}

func (r *Retrier) wait(ctx context.Context, attempt int) error {
	backoff := r.policy.MinBackoff << (attempt - 1)
	if backoff > r.policy.MaxBackoff || backoff <= 0 {
		backoff = r.policy.MaxBackoff
	}
	jitter := time.Duration(rand.Float64() * r.policy.JitterFrac * float64(backoff))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff + jitter):
		return nil
	}
}
