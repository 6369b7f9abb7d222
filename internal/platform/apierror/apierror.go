// Package apierror renders every API failure as one JSON shape:
//
//	{"error": "<Code>", "message": "<text>", "details": <optional>}
package apierror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/validate"
)

// Error codes carried in the "error" member.
const (
	CodeValidation   = "ValidationError"
	CodeUnauthorized = "Unauthorized"
	CodeForbidden    = "Forbidden"
	CodeNotFound     = "NotFound"
	CodeConflict     = "Conflict"
	CodeRateLimited  = "RateLimited"
	CodeTooLarge     = "PayloadTooLarge"
	CodeTimeout      = "Timeout"
	CodeServer       = "ServerError"
)

type Body struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// JSON writes a failure body with the given status.
func JSON(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, Body{Error: code, Message: message, Details: details})
}

// Validation writes a 400 for a *validate.Error.
func Validation(c echo.Context, err *validate.Error) error {
	return JSON(c, http.StatusBadRequest, CodeValidation, "request validation failed", err.Fields)
}

// Server writes an opaque 500. The cause must already have been logged.
func Server(c echo.Context) error {
	return JSON(c, http.StatusInternalServerError, CodeServer, "internal server error", nil)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeTimeout
	}
	if status >= 500 {
		return CodeServer
	}
	return http.StatusText(status)
}

// HTTPErrorHandler is installed as echo's error handler so errors returned
// by middleware and the router use the same body as handler failures.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"
		var details interface{}

		var he *echo.HTTPError
		var ve *validate.Error
		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			message = "request validation failed"
			details = ve.Fields
		case errors.As(err, &he):
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		}

		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
			message = "internal server error"
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = JSON(c, status, codeForStatus(status), message, details)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
