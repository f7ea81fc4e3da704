package queryclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// retrier wraps single transport attempts with bounded exponential backoff:
// baseDelay*2^n capped at delayCap. Cancellation is terminal and never
// retried; protocol errors never reach this layer because the transport
// returns them inside a successful Response.
type retrier struct {
	maxRetries int // -1 disables retries
	baseDelay  time.Duration
	delayCap   time.Duration
	jitter     bool
	timeout    time.Duration
	logger     *zap.Logger
}

// run executes attempt until it succeeds, the caller cancels, or maxRetries
// re-attempts have been spent. A per-attempt timeout counts as a transient
// failure; the parent ctx being done counts as cancellation.
func (r *retrier) run(ctx context.Context, attempt func(context.Context) (*Response, error)) (*Response, error) {
	attempts := 0
	op := func() (*Response, error) {
		attempts++
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if r.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		defer cancel()

		resp, err := attempt(attemptCtx)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			// The caller abandoned the request mid-attempt.
			return nil, backoff.Permanent(ctx.Err())
		}
		if retryable(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.baseDelay
	expo.Multiplier = 2
	expo.MaxInterval = r.delayCap
	expo.RandomizationFactor = 0
	if r.jitter {
		expo.RandomizationFactor = 0.5
	}

	maxTries := uint(r.maxRetries + 1)
	if r.maxRetries < 0 {
		maxTries = 1
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("request attempt failed, backing off",
				zap.Int("attempt", attempts),
				zap.Duration("delay", next),
				zap.Error(err))
		}),
	)
	if err == nil {
		return resp, nil
	}
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		return nil, err
	}
	if retryable(err) {
		// A retryable error escaping Retry means the budget is spent.
		return nil, &ExhaustedError{Attempts: attempts, Err: err}
	}
	return nil, err
}
