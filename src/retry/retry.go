// Package retry implements the bounded retry/backoff policy wrapped around
// vendor network calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

const (
	DefaultMaxAttempts = 5
	DefaultDelay       = time.Second
	defaultMaxDelay    = time.Minute
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// Policy retries transient failures a fixed number of times.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	Logger      *slog.Logger

	// OnRetry is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// stopError marks an error as final regardless of its class.
type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so the policy returns it without another attempt. Adapters
// use it once part of a streamed response has reached the caller.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Retryable reports whether err belongs to a transient failure class.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var stop *stopError
	if errors.As(err, &stop) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *aisdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	if aisdk.IsNetwork(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (p *Policy) attempts() int {
	if p == nil || p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *Policy) logger() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// delayFor returns the wait before attempt n+1 (n starts at 1).
func (p *Policy) delayFor(n int, err error) time.Duration {
	delay := DefaultDelay
	maxDelay := defaultMaxDelay
	backoff := BackoffFixed
	if p != nil {
		if p.Delay > 0 {
			delay = p.Delay
		}
		if p.MaxDelay > 0 {
			maxDelay = p.MaxDelay
		}
		if p.Backoff != "" {
			backoff = p.Backoff
		}
	}
	if backoff == BackoffExponential {
		delay = delay * time.Duration(1<<uint(min(n-1, 16)))
	}

	// Rate limit responses may carry their own wait
	var apiErr *aisdk.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// Do is Execute for calls that produce a value.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	budget := p.attempts()
	logger := p.logger()

	for attempt := 1; attempt <= budget; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}
		if !Retryable(err) {
			return zero, err
		}
		if attempt == budget {
			break
		}

		delay := p.delayFor(attempt, err)
		logger.Debug("request attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if p != nil && p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn("request failed after all retries", "attempts", budget, "error", lastErr)
	return zero, &ExhaustedError{Attempts: budget, Last: lastErr}
}
