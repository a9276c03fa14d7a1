// Package httputil centralizes JSON response writing so handlers stay thin
// and error envelopes stay consistent across transports.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "worksign/pkg/domain-errors"
)

// ErrorBody is the wire envelope for every error response.
type ErrorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into its HTTP status and `{code,
// detail}` envelope. Internal failures never leak their detail to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	detail := dErrors.DetailOf(err)
	if code == dErrors.CodeInternal {
		detail = "internal error"
	} else if detail == "" {
		detail = string(code)
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorBody{Code: string(code), Detail: detail})
}
