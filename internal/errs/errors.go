package errs

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP boundary and the event consumer.
type Kind string

const (
	KindValidation Kind = "Validation"
	KindNotFound   Kind = "NotFound"
	KindForbidden  Kind = "Forbidden"
	KindConflict   Kind = "Conflict"
	KindTransient  Kind = "Transient"
	KindUnknown    Kind = "Unknown"
)

// Error carries a kind and a client-safe message next to the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error. cause may be nil.
func E(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Validation(msg string) error { return E(KindValidation, msg, nil) }
func NotFound(msg string) error   { return E(KindNotFound, msg, nil) }
func Forbidden(msg string) error  { return E(KindForbidden, msg, nil) }
func Conflict(msg string) error   { return E(KindConflict, msg, nil) }

// Transient wraps an infrastructure failure (store or transport unavailable).
func Transient(msg string, cause error) error { return E(KindTransient, msg, cause) }

// KindOf returns the kind of the outermost classified error in the chain,
// or KindUnknown if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the client-safe message of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an internal server error occurred"
}

// Permanent reports whether retrying the operation can never succeed.
func Permanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindForbidden, KindConflict:
		return true
	}
	return false
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Title is the short human label used in error responses.
func Title(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Bad Request"
	case KindNotFound:
		return "Not Found"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindTransient:
		return "Service Unavailable"
	default:
		return "Internal Server Error"
	}
}
