package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"mediaapi/internal/ffmpeg"
	"mediaapi/internal/http/middleware"
	"mediaapi/internal/repository"
	"mediaapi/internal/service"
	"mediaapi/internal/storage"
	"mediaapi/internal/validate"
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

// serviceErrors maps service and validation sentinels to a status and code.
// Their messages are written to the client as is.
var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrIDRequired, fiber.StatusBadRequest, "INVALID_ID"},
	{service.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{service.ErrReaderNil, fiber.StatusBadRequest, "FILE_REQUIRED"},
	{service.ErrKindMismatch, fiber.StatusConflict, "KIND_MISMATCH"},
	{service.ErrNotVideo, fiber.StatusUnprocessableEntity, "NOT_VIDEO"},
	{service.ErrArtifactNotFound, fiber.StatusNotFound, "ARTIFACT_NOT_FOUND"},
	{repository.ErrSlugTaken, fiber.StatusConflict, "SLUG_TAKEN"},
	{validate.ErrFilenameRequired, fiber.StatusBadRequest, "FILENAME_REQUIRED"},
	{validate.ErrUnsupportedExtension, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_EXTENSION"},
	{validate.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{validate.ErrMIMEMismatch, fiber.StatusUnsupportedMediaType, "MIME_MISMATCH"},
	{validate.ErrInvalidKind, fiber.StatusBadRequest, "INVALID_KIND"},
	{storage.ErrPresignUnsupported, fiber.StatusNotImplemented, "PRESIGN_UNSUPPORTED"},
	{ffmpeg.ErrEmptyOutput, fiber.StatusUnprocessableEntity, "FRAME_UNAVAILABLE"},
}

// writeServiceError translates an error returned by the media service.
// Unknown errors are logged and answered with a generic 500.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			return writeError(c, e.status, e.code, err.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return writeError(c, fiber.StatusRequestTimeout, "REQUEST_TIMEOUT", "request timed out")
	}
	zap.L().Error("request failed",
		zap.String("request_id", requestIDFromCtx(c)),
		zap.String("path", c.Path()),
		zap.Error(err))
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
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
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", "request body too large")
		case fiber.StatusRequestTimeout:
			return writeError(c, status, "REQUEST_TIMEOUT", "request timed out")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
