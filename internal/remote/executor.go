package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

const (
	// defaultMaxTries is the total number of attempts for a retryable call
	// (first attempt plus two retries).
	defaultMaxTries = 3

	// defaultBaseDelay is the initial backoff interval.
	defaultBaseDelay = 500 * time.Millisecond

	// defaultMaxDelay caps the backoff interval growth.
	defaultMaxDelay = 10 * time.Second
)

// Executor runs remote calls with bounded retry and exponential backoff.
// Only transient error kinds (timeouts, DNS failures, 5xx, 429) are retried;
// everything else is returned to the caller on the first attempt.
type Executor struct {
	maxTries  uint
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxTries sets the total attempt budget, including the first attempt.
func WithMaxTries(n uint) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxTries = n
		}
	}
}

// WithBackoffDelays sets the initial and maximum backoff intervals.
func WithBackoffDelays(base, maxDelay time.Duration) ExecutorOption {
	return func(e *Executor) {
		if base > 0 {
			e.baseDelay = base
		}
		if maxDelay > 0 {
			e.maxDelay = maxDelay
		}
	}
}

// WithExecutorLogger sets the logger used for retry diagnostics.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an Executor with the default retry budget.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxTries:  defaultMaxTries,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op with the executor's retry policy and returns its result.
// Non-retryable errors abort immediately. The operation must be idempotent:
// callers execute mutations through ExecuteOnce unless they attach an
// idempotency key to the request.
func Execute[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.baseDelay
	bo.MaxInterval = e.maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		out, opErr := op(ctx)
		if opErr == nil {
			return out, nil
		}

		if errors.Is(opErr, context.Canceled) {
			return out, backoff.Permanent(opErr)
		}

		kind := KindOf(opErr)
		if !kind.Retryable() {
			return out, backoff.Permanent(NewError(kind, opErr))
		}

		e.logger.Debug("Retryable remote call failure",
			"operation", name,
			"attempt", attempt,
			"kind", string(kind),
			"error", opErr)
		return out, NewError(kind, opErr)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(e.maxTries))

	if err != nil {
		e.logger.Debug("Remote call failed",
			"operation", name,
			"attempts", attempt,
			"kind", string(KindOf(err)),
			"error", err)
	}
	return result, err
}

// ExecuteOnce runs op exactly once, classifying any failure. Used for
// non-idempotent mutations that must not be replayed.
func ExecuteOnce[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	out, err := op(ctx)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) {
		return out, err
	}
	kind := KindOf(err)
	e.logger.Debug("Remote call failed",
		"operation", name,
		"attempts", 1,
		"kind", string(kind),
		"error", err)
	return out, NewError(kind, err)
}

// ResultKind extracts the ErrorKind from an Execute error for use in a
// SyncResult. Exhausted retries surface the kind of the final attempt.
func ResultKind(err error) models.ErrorKind {
	return KindOf(err)
}
