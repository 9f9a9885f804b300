package errors

import stderrors "errors"

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err must not be retried, either because it was
// explicitly marked or because its domain code is not transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var target permanentError
	if stderrors.As(err, &target) {
		return true
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return !domainErr.Code.Retryable()
	}
	return false
}
