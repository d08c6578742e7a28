package crawler

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the crawl pipeline. Callers match them with errors.Is.
var (
	// ErrValidation marks malformed or out-of-policy input. It is always reported
	// synchronously to the caller and never retried.
	ErrValidation = errors.New("validation error")
	// ErrRemote marks a download or transport failure.
	ErrRemote = errors.New("remote error")
	// ErrMalformedContent marks a body the parser could not interpret as markup.
	ErrMalformedContent = errors.New("malformed content")
	// ErrIOFailure marks a storage failure.
	ErrIOFailure = errors.New("io failure")
	// ErrInvariantViolation marks internal bookkeeping misuse.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Error carries the kind of a pipeline failure together with the operation and
// URL it happened on.
type Error struct {
	Kind error
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError whose message is exactly msg.
func NewValidationError(msg string) error {
	return &validationError{msg: msg}
}

// validationError keeps the user-facing message free of operation prefixes so
// the API can echo it verbatim.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }

// RemoteError wraps a download failure.
func RemoteError(url string, err error) error {
	return &Error{Kind: ErrRemote, Op: "download", URL: url, Err: err}
}

// MalformedContentError wraps a parser failure.
func MalformedContentError(url string, err error) error {
	return &Error{Kind: ErrMalformedContent, Op: "parse", URL: url, Err: err}
}

// IOFailureError wraps a storage failure.
func IOFailureError(path string, err error) error {
	return &Error{Kind: ErrIOFailure, Op: "store", URL: path, Err: err}
}

// HTTPStatusError reports a non-200 response from the remote site.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}
