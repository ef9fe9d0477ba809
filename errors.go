package bootswap

import "fmt"

// CoreError is the interface implemented by every error value this module
// produces. It lets callers attach context without losing the sentinel the
// error unwraps to.
type CoreError interface {
	error
	WithMessage(message string) CoreError
	Wrap(err error) CoreError
}

// Error is a sentinel error. Comparisons should go through errors.Is so that
// wrapped errors still match their sentinel.
type Error string

// ErrFlashIO is returned whenever the flash driver reports a failure. The
// driver's error is surfaced unchanged underneath it.
const ErrFlashIO = Error("Flash input/output error")

// ErrStatusNotFound means no probed partition carried a GOOD trailer magic.
const ErrStatusNotFound = Error("Swap status not found")

// ErrGeometry means a sector descriptor needed for a size computation could
// not be obtained.
const ErrGeometry = Error("Sector geometry unavailable")

// ErrFaultDetected means a hardened comparison did not produce the success
// sentinel. Callers must treat this as fatal.
const ErrFaultDetected = Error("Fault injection detected")

const ErrAlignment = Error("Offset or length violates write alignment")
const ErrOutOfBounds = Error("Access outside the flash area")
const ErrWriteOnce = Error("Cell already programmed since last erase")
const ErrInvalidArgument = Error("Invalid argument")
const ErrNotSupported = Error("Operation not supported")
const ErrNoArea = Error("No such flash area")
const ErrAreaClosed = Error("Flash area is closed")

func (e Error) Error() string {
	return string(e)
}

func (e Error) WithMessage(message string) CoreError {
	return wrappedError{
		message:       fmt.Sprintf("%s: %s", string(e), message),
		originalError: e,
	}
}

func (e Error) Wrap(err error) CoreError {
	return wrappedError{
		message:       fmt.Sprintf("%s: %s", string(e), err.Error()),
		originalError: err,
		sentinel:      e,
	}
}

// -----------------------------------------------------------------------------

type wrappedError struct {
	message       string
	originalError error
	sentinel      error
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (e wrappedError) Error() string {
	return e.message
}

func (e wrappedError) WithMessage(message string) CoreError {
	return wrappedError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e wrappedError) Wrap(err error) CoreError {
	return wrappedError{
		message:       fmt.Sprintf("%s: %s", e.message, err.Error()),
		originalError: err,
		sentinel:      e,
	}
}

func (e wrappedError) Unwrap() []error {
	if e.sentinel != nil {
		return []error{e.sentinel, e.originalError}
	}
	return []error{e.originalError}
}
