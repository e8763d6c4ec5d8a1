// Package retry wraps single PRC API calls with bounded exponential
// backoff. Server-supplied Retry-After hints take precedence over the
// computed backoff so the poller never amplifies rate-limit pressure.
package retry

import (
	"context"
	"time"

	"github.com/tridentbot/erlc-ingest/internal/prc"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 400 * time.Millisecond
)

// Executor retries transient call failures. Authentication failures are
// returned immediately: they cannot succeed without a new credential.
type Executor struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// New creates an Executor with the given limits; non-positive values
// fall back to the defaults.
func New(maxRetries int, backoffBase time.Duration) Executor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	return Executor{MaxRetries: maxRetries, BackoffBase: backoffBase}
}

// Do invokes op, retrying transient failures up to MaxRetries times.
// Total attempts are therefore at most MaxRetries+1. The wait before
// attempt n is the error's Retry-After hint when present, otherwise
// BackoffBase * 2^(n-1). Waits are cut short when ctx is done, in which
// case the last call error is returned.
func (e Executor) Do(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if prc.IsAuthError(err) {
			return nil, err
		}
		lastErr = err
		if attempt >= e.MaxRetries {
			return nil, lastErr
		}

		delay := e.BackoffBase << uint(attempt)
		if hint, ok := prc.RetryAfterHint(err); ok {
			delay = hint
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		}
	}
}
