// Package apperr carries the application's error taxonomy. Every core
// operation that fails for a caller-visible reason returns an *Error with
// a specific Kind; handlers map the Kind to an HTTP status at the
// boundary and nowhere else.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: a referenced contract, user, invite, task or
	// submission does not exist.
	KindNotFound
	// KindPermissionDenied: the actor lacks the required role, e.g. a
	// non-owner inviting members.
	KindPermissionDenied
	// KindForbidden: the actor is authenticated but not entitled to this
	// specific resource, e.g. accepting an invite addressed to someone
	// else.
	KindForbidden
	// KindConflict: the operation lost to a prior state change, e.g. an
	// invite token that was already consumed.
	KindConflict
	// KindInvalidArgument: a well-formed request with an unacceptable
	// payload, e.g. a rejection without a reason.
	KindInvalidArgument
	// KindValidationFailed: malformed input shape, e.g. an unknown role
	// or label value.
	KindValidationFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindValidationFailed:
		return "validation_failed"
	}
	return "unknown"
}

// HTTPStatus maps a Kind to its boundary status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied, KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidArgument, KindValidationFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) *Error {
	return New(KindPermissionDenied, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

func ValidationFailed(format string, args ...any) *Error {
	return New(KindValidationFailed, format, args...)
}

// KindOf returns the Kind carried by err, or KindUnknown for errors
// outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
