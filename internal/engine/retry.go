package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how region reductions are retried.
type RetryPolicy struct {
	// Timeout applies to each attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// Backoff is the wait before the first retry; it doubles on each retry.
	Backoff time.Duration
}

// Retrying wraps a Reducer with a per-attempt timeout and a bounded retry
// budget. Only failures marked ErrRetryable, or attempts that hit their own
// timeout, are retried; cancellation of the caller's context is final.
type Retrying struct {
	next   Reducer
	policy RetryPolicy
	logger *zap.SugaredLogger
}

// NewRetrying wraps next.
func NewRetrying(next Reducer, policy RetryPolicy, logger *zap.SugaredLogger) *Retrying {
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// RegionReduce implements Reducer.
func (r *Retrying) RegionReduce(ctx context.Context, req *RegionRequest) (*RegionResult, error) {
	var lastErr error
	wait := r.policy.Backoff

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warnf("region reduction attempt %d/%d failed, retrying in %v: %v",
				attempt, r.policy.MaxRetries+1, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		res, err := r.attempt(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryBudgetExhausted, r.policy.MaxRetries+1, lastErr)
}

func (r *Retrying) attempt(ctx context.Context, req *RegionRequest) (*RegionResult, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	res, err := r.next.RegionReduce(ctx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: attempt timed out: %v", ErrRetryable, err)
	}
	return res, err
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
