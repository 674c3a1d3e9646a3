package dto

import (
	"errors"
	"net/http"
	"strings"

	"github.com/casaviva/backoffice/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Request error codes. These are raised by the HTTP layer before a
// command reaches the ledger.
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeInvalidID    = "ERR_INVALID_ID"
	ErrCodeMissingActor = "ERR_MISSING_ACTOR"
	// ErrCodeRequestValidation is used when the request body fails binding rules
	ErrCodeRequestValidation = "ERR_REQUEST_VALIDATION"
)

// Domain error codes that the handlers refer to directly.
const (
	ErrCodeValidation          = "ERR_VALIDATION_FAILED"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeStaleReference      = "ERR_STALE_REFERENCE"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeDuplicateRequest    = "ERR_DUPLICATE_REQUEST"
)

// ErrorCodeHTTPStatus maps request-level error codes to HTTP status codes.
// Domain errors are mapped by kind instead, see KindHTTPStatus.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:           http.StatusInternalServerError,
	ErrCodeInternal:          http.StatusInternalServerError,
	ErrCodeBadRequest:        http.StatusBadRequest,
	ErrCodeInvalidJSON:       http.StatusBadRequest,
	ErrCodeInvalidID:         http.StatusBadRequest,
	ErrCodeMissingActor:      http.StatusBadRequest,
	ErrCodeRequestValidation: http.StatusBadRequest,
}

// KindHTTPStatus maps a domain error kind to the HTTP status it is served
// with. Validation and precondition failures are rejections of a well-formed
// request (422); conflicts and stale references tell the client to reload
// (409).
var KindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:     http.StatusUnprocessableEntity,
	shared.KindPrecondition:   http.StatusUnprocessableEntity,
	shared.KindConflict:       http.StatusConflict,
	shared.KindStaleReference: http.StatusConflict,
	shared.KindNotFound:       http.StatusNotFound,
	shared.KindInvalidInput:   http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForKind returns the HTTP status for a domain error kind, or 500 for
// an unknown kind.
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := KindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode converts a domain error code to the ERR_ prefixed form
// used on the wire. Codes that already carry the prefix are returned as-is.
func NormalizeErrorCode(code string) string {
	if code == "" {
		return ErrCodeUnknown
	}
	if strings.HasPrefix(code, "ERR_") {
		return code
	}
	return "ERR_" + code
}

// ErrorInfoFor converts err into the wire error and its HTTP status. Errors
// that are not domain errors are reported as internal errors without their
// message.
func ErrorInfoFor(err error, requestID string) (int, *ErrorInfo) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return StatusForKind(de.Kind), &ErrorInfo{
			Code:      NormalizeErrorCode(de.Code),
			Message:   de.Message,
			Kind:      string(de.Kind),
			Details:   de.Details,
			RequestID: requestID,
		}
	}
	return http.StatusInternalServerError, &ErrorInfo{
		Code:      ErrCodeInternal,
		Message:   "An unexpected error occurred",
		RequestID: requestID,
	}
}
