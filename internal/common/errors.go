package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Error kinds. Match with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalid         = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	// ErrDelivery is logged and never surfaced to the caller
	ErrDelivery = errors.New("delivery failed")
)

// Machine readable codes carried in error bodies and realtime error events.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeInvalid         = "invalid"
	CodeNotFound        = "not_found"
	CodeGroupFull       = "group_full"
	CodeAlreadyMember   = "already_member"
	CodeInternal        = "internal"
)

type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, format string, args ...any) error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) error {
	return newError(ErrUnauthenticated, CodeUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(ErrForbidden, CodeForbidden, format, args...)
}

func Invalid(format string, args ...any) error {
	return newError(ErrInvalid, CodeInvalid, format, args...)
}

// InvalidCode is a validation error with a more specific code, e.g. CodeGroupFull.
func InvalidCode(code, format string, args ...any) error {
	return newError(ErrInvalid, code, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, CodeNotFound, format, args...)
}

// ErrorCode returns the code of the first *Error in the chain.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalid):
		return CodeInvalid
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}

// PublicMessage hides internal error text from clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch code := ErrorCode(err); code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeGroupFull, CodeAlreadyMember:
		return http.StatusConflict
	case CodeInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func GRPCCode(err error) codes.Code {
	switch code := ErrorCode(err); code {
	case CodeUnauthenticated:
		return codes.Unauthenticated
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeGroupFull, CodeAlreadyMember:
		return codes.FailedPrecondition
	case CodeInvalid:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	}
	return codes.Internal
}
