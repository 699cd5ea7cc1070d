package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrorResponse is the body returned by the API for any failed request.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind          string         `json:"kind"`
	Message       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

type kindStatus struct {
	ref    error
	kind   string
	status int
}

// ordered: first match wins
var kindTable = []kindStatus{
	{ErrValidation, "validation", http.StatusBadRequest},
	{ErrUnauthorized, "unauthorized", http.StatusBadRequest},
	{ErrInvalidOperation, "invalid_operation", http.StatusBadRequest},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrAlreadyExists, "already_exists", http.StatusConflict},
	{ErrVersionConflict, "version_conflict", http.StatusConflict},
	{ErrPermissionDenied, "permission_denied", http.StatusForbidden},
	{ErrProcessor, "processor", http.StatusBadGateway},
	{ErrDatabase, "database", http.StatusInternalServerError},
}

// Kind returns the stable, user-facing category of err.
func Kind(err error) string {
	for _, k := range kindTable {
		if errors.Is(err, k.ref) {
			return k.kind
		}
	}
	return "internal"
}

// HTTPStatusFromErr maps a marked error to its HTTP status code.
func HTTPStatusFromErr(err error) int {
	for _, k := range kindTable {
		if errors.Is(err, k.ref) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// NewErrorResponse builds the response body for err. Internal messages are only exposed for
// non-5xx errors and processor rejections, where the raw message is what an operator needs.
func NewErrorResponse(err error) ErrorResponse {
	status := HTTPStatusFromErr(err)
	msg := GetHint(err)
	if msg == "" {
		msg = http.StatusText(status)
	}

	detail := ErrorDetail{
		Kind:    Kind(err),
		Message: msg,
	}
	if status < http.StatusInternalServerError || errors.Is(err, ErrProcessor) {
		detail.InternalError = err.Error()
	}
	if details := GetReportableDetails(err); len(details) > 0 {
		detail.Details = details
	}

	return ErrorResponse{Success: false, Error: detail}
}
