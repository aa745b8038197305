package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/rag"
	"repolens/internal/store"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, msg string) Error {
	return Error{Code: code, Message: msg}
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, "invalid JSON request")
}

func ErrNotFound[T any](arg T, resource string) Error {
	return NewError(fiber.StatusNotFound, fmt.Sprintf("%s with %v not found", resource, arg))
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errs map[string]string) ValidationError {
	return ValidationError{Status: fiber.StatusUnprocessableEntity, Errors: errs}
}

// errorHandler renders errors as JSON. Domain sentinels map to the
// closest HTTP status; anything else is a 500.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var apiErr Error
		if errors.As(err, &apiErr) {
			return c.Status(apiErr.Code).JSON(apiErr)
		}
		var valErr ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(NewError(fe.Code, fe.Message))
		}

		code := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(NewError(code, err.Error()))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrInvalidRef), errors.Is(err, rag.ErrEmptyQuestion):
		return fiber.StatusBadRequest
	case errors.Is(err, fetcher.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, fetcher.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, index.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, fetcher.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, index.ErrQueueClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
