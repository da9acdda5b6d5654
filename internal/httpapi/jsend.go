package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	jsendSuccess = "success"
	jsendFail    = "fail"
	jsendError   = "error"
)

// envelope is a JSend body. Code is only set on "error" replies.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func reply(c echo.Context, httpStatus int, body envelope) error {
	if body.Status == jsendError {
		body.Code = httpStatus
	}
	return c.JSON(httpStatus, body)
}

func success(c echo.Context, data any) error {
	return reply(c, http.StatusOK, envelope{Status: jsendSuccess, Data: data})
}

func fail(c echo.Context, httpStatus int, message string, data any) error {
	return reply(c, httpStatus, envelope{Status: jsendFail, Message: message, Data: data})
}

func failValidation(c echo.Context, fieldErrors map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", map[string]any{
		"validation_errors": fieldErrors,
	})
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func unavailable(c echo.Context, message string) error {
	return reply(c, http.StatusServiceUnavailable, envelope{Status: jsendError, Message: message})
}

func internalError(c echo.Context, message string) error {
	return reply(c, http.StatusInternalServerError, envelope{Status: jsendError, Message: message})
}
