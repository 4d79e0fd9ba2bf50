// Package apperr defines the error taxonomy shared by the service layer and
// the HTTP handlers. Services return *Error values; handlers map the Kind to
// an HTTP status without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindNotAuthorized   Kind = "not_authorized"
	KindNotYourTurn     Kind = "not_your_turn"
	KindInvalidState    Kind = "invalid_state"
	KindEmptyTurnOrder  Kind = "empty_turn_order"
	KindValidation      Kind = "validation_failed"
	KindConflict        Kind = "conflict"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error. Anything that is not an *Error is
// treated as an internal failure so storage detail never leaks to callers.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
