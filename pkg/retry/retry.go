// Package retry implements a bounded, capped exponential backoff that is
// independent of the operation it wraps.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64

	// Sleep defaults to a timer-based wait.
	Sleep SleepFunc
}

// LockPolicy is the acquisition policy for per-user cart locks.
func LockPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Factor:       2,
	}
}

// PublishPolicy is used for events that must not be silently dropped.
func PublishPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2,
	}
}

// Delay returns the wait after the given zero-based attempt:
// min(InitialDelay * Factor^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	d := float64(p.InitialDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it reports done, returns an error wrapped with
// Permanent, or the attempts run out. fn receives the zero-based attempt.
// A false result with a nil error is an ordinary failed attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) (bool, error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := fn(ctx, attempt)
		if done && err == nil {
			return nil
		}
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return perm.err
			}
			lastErr = err
		}

		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops the retry loop and makes Do return err unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
