// Package apierr defines the transport-agnostic error taxonomy shared by
// the core components. Operations return an *Error tagged with a Kind; the
// HTTP and WebSocket layers map the Kind to a status code or error frame.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error code carried to clients.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindHistoryPruned Kind = "history_pruned"
	KindRateLimited   Kind = "rate_limited"
	KindOTPRequired   Kind = "otp_required"
	KindPayloadTooBig Kind = "payload_too_large"
	KindInternal      Kind = "internal"
)

// Error is a tagged error suitable for errors.Is/errors.As matching.
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

// Is matches any *Error with the same Kind, so callers can write
// errors.Is(err, apierr.NotFound("")) or compare against sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New returns a tagged error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func HistoryPruned(format string, args ...any) *Error {
	return New(KindHistoryPruned, format, args...)
}

func PayloadTooLarge(format string, args ...any) *Error {
	return New(KindPayloadTooBig, format, args...)
}

func Internal(format string, args ...any) *Error {
	return New(KindInternal, format, args...)
}

// KindOf extracts the Kind from any error; non-tagged errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the HTTP status code the taxonomy assigns it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized, KindOTPRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindHistoryPruned:
		return http.StatusGone
	case KindPayloadTooBig:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the JSON error body: {"error":{"code","message"}}.
type Envelope struct {
	Error Body `json:"error"`
}

// Body carries the code and human-readable message for a failed request.
type Body struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// ToEnvelope renders any error as the wire envelope. Internal error
// messages are not leaked to clients.
func ToEnvelope(err error) Envelope {
	kind := KindOf(err)
	msg := "internal server error"
	var e *Error
	if errors.As(err, &e) && kind != KindInternal {
		msg = e.Message
	}
	return Envelope{Error: Body{Code: kind, Message: msg}}
}
