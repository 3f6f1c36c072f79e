package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docchat/internal/http/middleware"
	"docchat/internal/memory"
	"docchat/internal/pipeline"
	"docchat/internal/service"
	"docchat/internal/upload"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// mapServiceError translates sentinel errors from the service layer into
// HTTP responses. Anything unrecognized becomes a 500 without detail.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, upload.ErrSessionNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "resource not found")

	case errors.Is(err, service.ErrAccessDenied):
		return writeError(c, fiber.StatusForbidden, "ACCESS_DENIED", "access denied")

	case errors.Is(err, service.ErrIDRequired),
		errors.Is(err, service.ErrOwnerRequired),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, upload.ErrInvalidInput),
		errors.Is(err, upload.ErrInvalidChunkIndex):
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "invalid input")

	case errors.Is(err, upload.ErrIncompleteUpload):
		return writeError(c, fiber.StatusConflict, "UPLOAD_INCOMPLETE", "upload is not complete")

	case errors.Is(err, pipeline.ErrUnsupportedMediaType):
		return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type")

	case errors.Is(err, pipeline.ErrNoContent):
		return writeError(c, fiber.StatusUnprocessableEntity, "NO_CONTENT", "document has no extractable text")

	case errors.Is(err, pipeline.ErrEmbeddingFailed),
		errors.Is(err, memory.ErrSummarizationFailed):
		return writeError(c, fiber.StatusBadGateway, "UPSTREAM_ERROR", "model backend unavailable")

	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
