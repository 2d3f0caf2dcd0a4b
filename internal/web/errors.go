package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request id (server-side)
//   - Mapped via core.MapError to a user message with a stable code
//   - Returned as JSON {error, message, action, code} with a status derived
//     from the error chain

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// respondError logs the technical error and writes the mapped user message.
// A zero status is derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)
	if errors.Is(err, errBadRequest) {
		msg = core.UserMessage{Message: "Invalid request", Action: err.Error(), Code: "REQ002"}
	}

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if errors.Is(err, core.ErrTooManyJobs) {
		w.Header().Set("Retry-After", "30")
	}
	respondErrorJSON(w, msg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps an error chain to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTemplateNotFound), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrJobActive), errors.Is(err, core.ErrAlreadyRolledBack):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge), errors.Is(err, fileio.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, fileio.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, transform.ErrConversion),
		errors.Is(err, core.ErrMissingColumns),
		errors.Is(err, fileio.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrMalformedFile),
		errors.Is(err, core.ErrInvalidTemplate),
		errors.Is(err, fileio.ErrUnsupportedFormat),
		errors.Is(err, transform.ErrUnknownOperation),
		errors.Is(err, transform.ErrMalformedRule),
		errors.Is(err, transform.ErrInvalidParam),
		errors.Is(err, transform.ErrLengthMismatch),
		errors.Is(err, validation.ErrUnknownRule),
		errors.Is(err, validation.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
