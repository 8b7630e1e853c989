// Package apperror defines the error kinds shared by both services.
//
// An *Error carries a human readable message plus a kind sentinel, so callers
// branch with errors.Is(err, apperror.ErrNotFound) while the message stays
// free of the kind prefix.
package apperror

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrPersistence       = errors.New("persistence error")
	ErrPublish           = errors.New("publish error")
	ErrProjection        = errors.New("projection error")
)

// Error is a classified error.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg}
}

// Persistence wraps a store failure. Returns nil when err is nil.
func Persistence(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrPersistence, Msg: msg, Err: err}
}

func Publish(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrPublish, Msg: msg, Err: err}
}

func Projection(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrProjection, Msg: msg, Err: err}
}

// IsClassified reports whether err already carries one of the kinds above.
func IsClassified(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
