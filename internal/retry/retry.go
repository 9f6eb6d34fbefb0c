// Package retry provides a bounded fixed-delay retry combinator.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched by the error Do returns when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultPolicy returns the policy used for remote reads.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 5,
		Delay:    2 * time.Second,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal so Do returns it without retrying.
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

// IsRetryable is the default classifier: everything except context errors
// and errors marked Permanent is retried.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsPermanent(err)
}

// Do calls fn until it succeeds, the classifier rejects an error, the
// context ends or the policy's attempts are used up. A rejected error is
// returned with any Permanent marker removed.
func Do(ctx context.Context, p Policy, classifier Classifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = IsRetryable
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !classifier(err) {
			var pe *permanentError
			if errors.As(err, &pe) {
				return pe.err
			}
			return err
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
