package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures inside the per-item pipeline
type ErrorKind string

const (
	ErrNotFound    ErrorKind = "NotFound"
	ErrTimeout     ErrorKind = "Timeout"
	ErrRequest     ErrorKind = "RequestError"
	ErrImageDecode ErrorKind = "ImageDecodeError"
	ErrProcessing  ErrorKind = "ProcessingError"
	ErrIO          ErrorKind = "IOError"
	ErrUnexpected  ErrorKind = "Unexpected"
)

// Error wraps an underlying error with its kind and the failing operation
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error from a format string
func Errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost classified error, or Unexpected
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnexpected
}
