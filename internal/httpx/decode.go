package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sundayezeilo/linkstat/internal/errx"
)

// MaxRequestBodySize caps JSON request bodies at 64KB.
const MaxRequestBodySize = 64 << 10

// DecodeJSON reads a single JSON object from the request body into a T.
// Unknown fields, trailing data and oversized bodies are rejected with an
// errx.Invalid error whose message is safe to return to the client.
func DecodeJSON[T any](r *http.Request) (T, error) {
	const op = "httpx.DecodeJSON"
	var v T

	body := http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)
	defer func() { _ = body.Close() }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var sizeErr *http.MaxBytesError

		var zero T
		switch {
		case errors.As(err, &syntaxErr):
			return zero, errx.Errorf(op, errx.Invalid, "malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return zero, errx.Errorf(op, errx.Invalid, "field %q has the wrong type", typeErr.Field)
		case errors.As(err, &sizeErr):
			return zero, errx.Errorf(op, errx.Invalid, "request body exceeds %d bytes", MaxRequestBodySize)
		case errors.Is(err, io.EOF):
			return zero, errx.Errorf(op, errx.Invalid, "request body is empty")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return zero, errx.Errorf(op, errx.Invalid, "request body is truncated")
		default:
			return zero, errx.E(op, errx.Invalid, fmt.Errorf("decode request body: %w", err))
		}
	}

	if dec.More() {
		var zero T
		return zero, errx.Errorf(op, errx.Invalid, "request body must hold a single JSON object")
	}
	return v, nil
}
