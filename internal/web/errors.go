package web

// errors.go provides unified error responses for the API.
//
// Technical errors are logged with the request id; clients receive the
// user-facing message from core.MapError with a status derived from the
// error class.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/importer/internal/core"
	"github.com/JonMunkholm/importer/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(r, err)
	writeJSONStatus(w, status, body)
}

// errorResponse logs err and returns its status and user-facing body.
func errorResponse(r *http.Request, err error) (int, ErrorResponse) {
	status := statusFor(err)
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	return status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// writeError writes a plain client error without a mapped code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, ErrorResponse{Error: message, Message: message, Code: "REQ000"})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var (
		headerErr *core.HeaderError
		rowErr    *core.RowError
		maxBytes  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, core.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUnsupportedOperation):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnknownColumn),
		errors.Is(err, core.ErrInvalidFilter),
		errors.Is(err, core.ErrInvalidCell),
		errors.Is(err, core.ErrNoFile),
		errors.As(err, &headerErr),
		errors.As(err, &rowErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrParentNotInBatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
