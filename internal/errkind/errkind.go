// Package errkind classifies control-plane failures so transports can map
// them to status codes without inspecting messages.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrPersistence     = errors.New("persistence")
)

// Error carries a kind, a human-readable message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// E builds an error of the given kind with a formatted message.
func E(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and an operation name to err. A nil err stays nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: op, Err: err}
}

var kinds = []error{ErrValidation, ErrUnauthenticated, ErrNotFound, ErrConflict, ErrPersistence}

// Kind returns the name of the first kind err matches, or "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal"
}

// Message returns the caller-safe message for err. Persistence and unknown
// failures collapse to a generic string so driver details do not leak.
func Message(err error) string {
	switch Kind(err) {
	case "persistence", "internal":
		return "internal storage failure"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
