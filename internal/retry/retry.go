// Package retry implements bounded retries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do gives up on it immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// backoff returns the sleep for the given delay with +-25% jitter, so
// concurrent retriers hitting the same dependency do not sync up.
func backoff(delay time.Duration) time.Duration {
	jitter := delay / 4
	if jitter <= 0 {
		return delay
	}
	return delay - jitter + time.Duration(rand.Int64N(int64(2*jitter+1)))
}

// Do calls fn up to maxAttempts times, doubling baseDelay between attempts.
// It returns early on success, on a *PermanentError (unwrapped), or when
// ctx is cancelled during a backoff sleep.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(delay)):
		}
		delay *= 2
	}

	return err
}
