package core

import "github.com/pkg/errors"

var (
	ErrDuplicateName     = errors.New("name already exists")
	ErrNotFound          = errors.New("not found")
	ErrAuthFailure       = errors.New("authentication failed")
	ErrForbidden         = errors.New("permission denied")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrMalformedDocument = errors.New("malformed document")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// RemoteError reports a failed object store call.
// It matches ErrRemoteUnavailable with errors.Is.
type RemoteError struct {
	Op  string
	Err error
}

func NewRemoteError(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

func (err *RemoteError) Error() string {
	if err.Err == nil {
		return err.Op + ": " + ErrRemoteUnavailable.Error()
	}
	return err.Op + ": " + err.Err.Error()
}

func (err *RemoteError) Unwrap() error { return err.Err }

func (err *RemoteError) Is(target error) bool { return target == ErrRemoteUnavailable }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
