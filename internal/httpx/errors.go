package httpx

import (
	"errors"
	"net/http"

	"github.com/sundayezeilo/linkstat/internal/errx"
)

// ErrorKindToStatus maps an error kind to its HTTP status.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Unauthorized:
		return http.StatusUnauthorized
	case errx.Forbidden:
		return http.StatusForbidden
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps an error kind to the "error" field of a JSON error body.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not_found"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "invalid_input"
	case errx.Unauthorized:
		return "unauthorized"
	case errx.Forbidden:
		return "forbidden"
	case errx.Unavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// ClientMessage returns text that can be shown to API callers. Messages of
// client-side kinds come from the innermost error; server-side kinds get a
// fixed message so that store details never leak.
func ClientMessage(err error) string {
	switch errx.KindOf(err) {
	case errx.Invalid, errx.Conflict, errx.NotFound, errx.Unauthorized, errx.Forbidden:
		return rootMessage(err)
	case errx.Unavailable:
		return "service temporarily unavailable, try again later"
	default:
		return "an unexpected error occurred"
	}
}

func rootMessage(err error) string {
	var e *errx.Error
	for errors.As(err, &e) {
		if e.Err == nil {
			return e.Op
		}
		err = e.Err
	}
	return err.Error()
}

// WriteErrx writes err as a JSON error using its kind for status and code.
func WriteErrx(w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)
	WriteError(w, ErrorKindToStatus(kind), ErrorKindToCode(kind), ClientMessage(err), nil)
}
