// Package retry wraps idempotent outbound calls in rate-limit-aware
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/ufiyan/leadrevive/internal/generate"
	"github.com/ufiyan/leadrevive/internal/util"
	"golang.org/x/time/rate"
)

const (
	DefaultAttempts       = 5
	DefaultBackoffInitial = 1 * time.Second
)

// Executor runs a request function with retries.
//
// Backoff doubles after every failed attempt (1, 2, 4, 8 units) with no
// jitter, so sleep intervals are deterministic. BackoffMax is disabled by
// default; set it before raising Attempts past the default, where unbounded
// doubling starts to hurt.
type Executor struct {
	// Attempts is the total attempt budget including the first call.
	Attempts int

	// BackoffInitial is the sleep before the first retry.
	BackoffInitial time.Duration

	// BackoffMax caps backoff growth. <=0 disables the cap.
	BackoffMax time.Duration

	// AttemptTimeout bounds each individual attempt. <=0 disables it.
	AttemptTimeout time.Duration

	// Limiter, when set, gates every attempt across all callers sharing the
	// executor, bounding the outbound request rate.
	Limiter *rate.Limiter

	// Sleep replaces the backoff sleep; tests inject a recorder here.
	// It must return early with ctx.Err() when the context ends.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (ex Executor) withDefaults() Executor {
	if ex.Attempts <= 0 {
		ex.Attempts = DefaultAttempts
	}
	if ex.BackoffInitial <= 0 {
		ex.BackoffInitial = DefaultBackoffInitial
	}
	if ex.Sleep == nil {
		ex.Sleep = sleepCtx
	}
	if ex.Logger == nil {
		ex.Logger = slog.Default()
	}
	return ex
}

// Do runs fn until it succeeds, fails fatally, or the attempt budget runs
// out. fn must perform exactly one attempt of an idempotent call. Retry
// triggers are rate limiting (generate.TransientError), transport-level
// failures, and per-attempt deadline expiry; every other error propagates
// immediately. After the last attempt the last error propagates as-is.
func Do[T any](ctx context.Context, ex Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	ex = ex.withDefaults()

	var lastOut T
	var lastErr error
	for attempt := 0; attempt < ex.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastOut, err
		}

		if ex.Limiter != nil {
			if err := ex.Limiter.Wait(ctx); err != nil {
				return lastOut, err
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if ex.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, ex.AttemptTimeout)
		}
		out, err := fn(attemptCtx)
		lastOut = out
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastOut, ctx.Err()
		}
		lastErr = err
		if !Retryable(err) || attempt == ex.Attempts-1 {
			return lastOut, err
		}

		sleep := backoff(ex.BackoffInitial, ex.BackoffMax, attempt)
		ex.Logger.Warn("retrying after transient failure",
			"op", op,
			"attempt", attempt+1,
			"backoff", sleep,
			"error", util.RedactSecrets(err.Error()))
		if err := ex.Sleep(ctx, sleep); err != nil {
			return lastOut, err
		}
	}
	return lastOut, lastErr
}

// Retryable reports whether err is worth another attempt: rate limiting,
// a transport failure, or an expired per-attempt deadline.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *generate.TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoff(initial, max time.Duration, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	return sleep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
