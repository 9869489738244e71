// Package httputil centralizes JSON encoding and domain-error translation
// for HTTP handlers so every endpoint returns the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "caregate/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the standard error envelope.
// Internal errors omit the description so storage details never leak to
// callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := ""

	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal && code != dErrors.CodeStorageUnavailable && message != "" {
		body["error_description"] = message
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode parses the JSON request body into T, writing a bad_request envelope
// and returning ok=false on failure.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return req, false
	}
	return req, true
}
