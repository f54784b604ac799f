package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DuplicateValueMessage is returned to clients when a unique constraint fails
const DuplicateValueMessage = "Database duplicated value error"

// StatusError is implemented by errors that know which HTTP status they map to
type StatusError interface {
	error
	StatusCode() int
	PublicMessage() string
}

// HTTPError is an error with a status code and a client-safe message
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

// NewHTTPError creates an HTTPError without a cause
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// WrapHTTPError creates an HTTPError that keeps the underlying cause
func WrapHTTPError(status int, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Message: message, Err: err}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the error
func (e *HTTPError) StatusCode() int { return e.Status }

// PublicMessage returns the message that is safe to show to clients
func (e *HTTPError) PublicMessage() string { return e.Message }

// Convenience constructors
func BadRequest(message string) *HTTPError   { return NewHTTPError(http.StatusBadRequest, message) }
func Unauthorized(message string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, message) }
func Forbidden(message string) *HTTPError    { return NewHTTPError(http.StatusForbidden, message) }
func NotFound(message string) *HTTPError     { return NewHTTPError(http.StatusNotFound, message) }
func Conflict(message string) *HTTPError     { return NewHTTPError(http.StatusConflict, message) }

// Internal wraps an unexpected failure. The cause is logged, never returned to clients.
func Internal(message string, err error) *HTTPError {
	return WrapHTTPError(http.StatusInternalServerError, message, err)
}

// StatusOf resolves the status code and client message for any error
func StatusOf(err error) (int, string) {
	var se StatusError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &se):
		return se.StatusCode(), se.PublicMessage()
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict, DuplicateValueMessage
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTooManyRequests):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// RespondError writes err using the standard envelope and aborts the chain
func RespondError(c *gin.Context, err error) {
	status, message := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
		}).WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, APIResponse{
		Success: false,
		Error:   message,
	})
}
