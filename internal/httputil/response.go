// Package httputil writes JSON error bodies and parses pagination for the
// gin handlers.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/keycache/internal/errors"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
	// message is returned to the client. Empty means err.Error() is safe to expose.
	message string
}

// errorMappings is matched in order; the first target found in the chain wins.
var errorMappings = []errorMapping{
	{target: apperrors.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: apperrors.ErrConflict, status: http.StatusConflict, code: "conflict"},
	{target: apperrors.ErrInvalidInput, status: http.StatusUnprocessableEntity, code: "invalid_input"},
	{
		target:  apperrors.ErrUnavailable,
		status:  http.StatusServiceUnavailable,
		code:    "unavailable",
		message: "A key source could not be reached",
	},
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestid.Get(c),
	})
}

// HandleErrorGin maps err to a status code and error code. Unknown errors
// become 500 without details; the full chain is only logged.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	status, code, message := http.StatusInternalServerError, "internal_error", "An internal error occurred"
	for _, m := range errorMappings {
		if apperrors.Is(err, m.target) {
			status, code, message = m.status, m.code, m.message
			if message == "" {
				message = err.Error()
			}
			break
		}
	}

	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request failed",
			slog.Int("status_code", status),
			slog.String("error_code", code),
			slog.Any("error", err),
		)
	}

	writeError(c, status, code, message)
}

// HandleBadRequestGin answers 400 for malformed bodies and query parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}
	writeError(c, http.StatusBadRequest, "bad_request", err.Error())
}

// HandleValidationErrorGin answers 422 for requests that parse but fail validation.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}
	writeError(c, http.StatusUnprocessableEntity, "validation_error", err.Error())
}
