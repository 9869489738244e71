// Package domainerrors defines coded domain errors shared across services.
//
// Stores return pkg/sentinel errors for infrastructure facts; services wrap
// or translate them into these coded errors so the transport layer can map
// them onto HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure. Codes are part of the API
// surface: they appear in error envelopes and audit details.
type Code string

const (
	CodeFormatInvalid      Code = "format_invalid"
	CodeNotFound           Code = "not_found"
	CodeNotActive          Code = "not_active"
	CodeExpired            Code = "expired"
	CodeRevoked            Code = "revoked"
	CodeConsentMissing     Code = "consent_missing"
	CodeConsentExpired     Code = "consent_expired"
	CodeRetentionViolation Code = "retention_violation"
	CodePermissionDenied   Code = "permission_denied"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// CodeOf extracts the domain error code, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code onto an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeFormatInvalid, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeExpired:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotActive, CodeRevoked, CodeConsentMissing, CodeConsentExpired,
		CodeRetentionViolation, CodePermissionDenied:
		return http.StatusForbidden
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
