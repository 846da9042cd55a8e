// Package domainerrors defines the relay's client-facing error codes.
//
// Services return *Error values; the HTTP layer translates them into a status
// code and a JSON envelope in exactly one place (pkg/platform/httputil).
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is the stable, machine-readable error identifier returned to clients.
type Code string

const (
	CodeBadRequest      Code = "bad_request"
	CodeMissingFields   Code = "missing_fields"
	CodeInvalidTx       Code = "invalid_tx_base64"
	CodeInvalidPayer    Code = "invalid_payer"
	CodeInvalidOwner    Code = "invalid_owner"
	CodeSignFailed      Code = "sign_failed"
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeNonceReplay     Code = "nonce_replay"
	CodeDuplicateTx     Code = "duplicate_tx"
	CodeRateLimited     Code = "rate_limited"
	CodeNotConfigured   Code = "not_configured"
	CodeSponsorInternal Code = "sponsor_internal"
	CodeInternal        Code = "internal_error"
)

var statusByCode = map[Code]int{
	CodeBadRequest:      http.StatusBadRequest,
	CodeMissingFields:   http.StatusBadRequest,
	CodeInvalidTx:       http.StatusBadRequest,
	CodeInvalidPayer:    http.StatusBadRequest,
	CodeInvalidOwner:    http.StatusBadRequest,
	CodeSignFailed:      http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNonceReplay:     http.StatusConflict,
	CodeDuplicateTx:     http.StatusConflict,
	CodeRateLimited:     http.StatusTooManyRequests,
	CodeNotConfigured:   http.StatusInternalServerError,
	CodeSponsorInternal: http.StatusInternalServerError,
	CodeInternal:        http.StatusInternalServerError,
}

// Error is a domain error carrying a client-facing code, a human-readable
// message and optional structured fields merged into the response body.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithField returns the error with an extra response field set.
func (e *Error) WithField(key, value string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string, 2)
	}
	e.Fields[key] = value
	return e
}

// Is reports whether err is a domain error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// HTTPStatus maps a code to its HTTP status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
