package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/retry"
	"github.com/vrsandeep/mylist-go/internal/webclient"
)

var (
	// ErrTransient is a failure that might succeed on a later cycle.
	ErrTransient = errors.New("transient fetch failure")
	// ErrExhausted means every retry attempt failed with a transient error.
	ErrExhausted = errors.New("fetch retries exhausted")
	// ErrValidationMismatch means the list page or feed disagrees with the
	// lookup service about a video.
	ErrValidationMismatch = errors.New("primary source disagrees with lookup")
	// ErrMalformed means the page, feed or one of its timestamps could not be parsed.
	ErrMalformed = errors.New("malformed list data")
	// ErrNotFound means the list itself no longer exists.
	ErrNotFound = errors.New("list not found")
	// ErrRejected is any other non-retryable refusal from the remote site.
	ErrRejected = errors.New("request rejected by remote site")
)

// FetchError is the error every Fetcher returns. Kind is one of the
// package's sentinel errors.
type FetchError struct {
	ListURL string
	Kind    error
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%v): %v", e.ListURL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// wrapError classifies err and attaches the list URL.
func wrapError(listURL string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{ListURL: listURL, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrValidationMismatch):
		return ErrValidationMismatch
	case errors.Is(err, ErrMalformed), errors.Is(err, lookup.ErrMalformed):
		return ErrMalformed
	case errors.Is(err, retry.ErrExhausted):
		return ErrExhausted
	case errors.Is(err, webclient.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	}
	var se *webclient.StatusError
	if errors.As(err, &se) && !se.Temporary() {
		return ErrRejected
	}
	return ErrTransient
}

// retryable is the classifier used for every remote call a fetcher makes.
func retryable(err error) bool {
	return !retry.IsPermanent(err) && webclient.IsTransient(err)
}

// permanentHTTP marks non-retryable HTTP failures so retry.Do stops early.
func permanentHTTP(err error) error {
	if err != nil && !webclient.IsTransient(err) {
		return retry.Permanent(err)
	}
	return err
}
