// Package retry runs an operation again after a delay when it fails.
//
// Used by the ingestion buffer when a persist call fails and by the
// stream pipeline's retry error policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for negative delays or multipliers.
var ErrInvalidConfig = errors.New("retry: invalid config")

// Config controls how many times and how often an operation is retried.
type Config struct {
	// Retries is the number of additional attempts after the first.
	// 0 runs the operation exactly once.
	Retries int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Multiplier scales the delay after each retry. 0 or 1 keeps it constant.
	Multiplier float64

	// MaxDelay caps the delay when Multiplier > 1. 0 means uncapped.
	MaxDelay time.Duration
}

// Constant returns a Config with a fixed delay between attempts.
func Constant(retries int, delay time.Duration) Config {
	return Config{Retries: retries, Delay: delay}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Do stops retrying and returns it as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds, returns a Permanent error, the retries are
// exhausted, or ctx is done. The attempt number (starting at 1) is passed to fn.
//
// Returns:
//   - error: nil on success; otherwise the last error from fn wrapped with
//     the attempt count, or the context error
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.Delay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return ErrInvalidConfig
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	attempts := cfg.Retries + 1
	delay := cfg.Delay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, err)
		}

		if cfg.Multiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
