package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/middleware"
)

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestid"); requestID != nil {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return c.Get("X-Request-ID", "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// customErrorHandler handles errors globally. The code is derived from the
// status text, e.g. 404 becomes NOT_FOUND.
func customErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		status = e.Code
		message = e.Message
	}

	if status >= 500 {
		log.Error().
			Err(err).
			Str("path", c.Path()).
			Str("request_id", getRequestID(c)).
			Str("trace_id", middleware.GetTraceID(c)).
			Msg("Server error")
	}

	return SendErrorWithCode(c, status, message, statusCode(status))
}

// statusCode turns an HTTP status into an error code
func statusCode(status int) string {
	text := utils.StatusMessage(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
