package llm

import (
	"errors"
)

// Stream failures are classified at the gateway boundary so callers can map
// them onto activity retry semantics: 5xx and 429 responses come back as
// TransientError, 4xx and malformed requests as FatalError.

// TransientError marks a gateway failure worth retrying, such as an
// overloaded router or a dropped stream.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError classifies err as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks a gateway failure that retrying cannot fix, such as a
// rejected request or an unknown router model.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError classifies err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err carries a TransientError anywhere in its
// chain.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
