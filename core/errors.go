package core

import "github.com/pkg/errors"

// ErrNotFound is the cause of every "not found" error returned by repositories and services.
var ErrNotFound = errors.New("not found")

// FieldError reports a problem with one input field, keyed by its JSON name.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client error: a general cause, field errors, or both.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case len(e.Fields) > 0:
		return e.Fields[0].Field + ": " + e.Fields[0].Error
	}
	return "invalid input"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FieldMap returns the field errors keyed by field, or nil if there are none.
func (e *ValidationError) FieldMap() map[string]string {
	if len(e.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Error
	}
	return m
}

// ShutdownError marks a failure the process cannot recover from, like a closed connection pool.
type ShutdownError struct {
	Op  string
	Err error
}

func NewShutdownError(op string, err error) error {
	return &ShutdownError{Op: op, Err: err}
}

func (e *ShutdownError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// IsShutdown reports whether err or any error it wraps is a *ShutdownError.
func IsShutdown(err error) bool {
	var sErr *ShutdownError
	return errors.As(err, &sErr)
}
