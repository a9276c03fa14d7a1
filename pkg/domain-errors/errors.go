// Package domainerrors defines typed, code-carrying errors shared by services
// and transports. Codes are stable wire identifiers; detail strings are
// human-readable and may be localized by the caller.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class with a stable wire representation.
type Code string

const (
	// Token-state errors. Recoverable only by obtaining a fresh token.
	CodeNotFound      Code = "NOT_FOUND"
	CodeTokenRevoked  Code = "TOKEN_REVOKED"
	CodeTokenUsed     Code = "TOKEN_USED"
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeScopeMismatch Code = "SCOPE_MISMATCH"

	// Input errors. The client corrects and resubmits with the same token.
	CodeBadJSON          Code = "BAD_JSON"
	CodeActionInvalid    Code = "ACTION_INVALID"
	CodeCommentRequired  Code = "COMMENT_REQUIRED"
	CodeGeometryRequired Code = "GEOMETRY_REQUIRED"
	CodeGeomInvalid      Code = "GEOM_INVALID"

	// Concurrency: the client must re-fetch and re-render before retrying.
	CodeSnapshotOutdated Code = "SNAPSHOT_OUTDATED"

	// Invariant violations. A replay or programming error, never swallowed.
	CodeAlreadyDecided    Code = "ALREADY_DECIDED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeInternal            Code = "INTERNAL"
)

// Error carries a code, a human-readable detail, and an optional cause.
type Error struct {
	Code   Code
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with the given code and detail.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap annotates an underlying error with a code and detail, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailOf extracts the human-readable detail from err, or an empty string
// when err is not a domain error.
func DetailOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP status. Token-state and invariant
// errors follow the public contract: revocation and scope problems are 403,
// consumed and expired tokens are 410 Gone.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTokenRevoked, CodeScopeMismatch:
		return http.StatusForbidden
	case CodeTokenUsed, CodeTokenExpired:
		return http.StatusGone
	case CodeBadJSON, CodeBadRequest:
		return http.StatusBadRequest
	case CodeSnapshotOutdated, CodeAlreadyDecided, CodeInvalidTransition:
		return http.StatusConflict
	case CodeActionInvalid, CodeCommentRequired, CodeGeometryRequired, CodeGeomInvalid:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
