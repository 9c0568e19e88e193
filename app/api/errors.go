package api

import (
	"errors"
	"fmt"
	"log/slog"

	"studyrag/export"
	"studyrag/index"
	"studyrag/planner"
	"studyrag/store"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiError Error
	if errors.As(err, &apiError) {
		return c.Status(apiError.Code).JSON(apiError)
	}
	var valError ValidationError
	if errors.As(err, &valError) {
		return c.Status(valError.Status).JSON(valError)
	}

	apiError = NewError(statusOf(err), err.Error())
	if apiError.Code >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "code", apiError.Code, "error", err)
	} else {
		slog.Info("request rejected", "method", c.Method(), "path", c.Path(), "code", apiError.Code, "error", err)
	}
	return c.Status(apiError.Code).JSON(apiError)
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, planner.ErrInfeasibleSchedule),
		errors.Is(err, planner.ErrInvalidBudget),
		errors.Is(err, planner.ErrUnknownStrategy),
		errors.Is(err, export.ErrUnknownFormat):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, index.ErrRetrievalUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
