package response

import (
	"errors"
	"net/http"

	"license-api/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Error returns an error response
func Error(statusCode int, message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// JSON sends a JSON response
func JSON(c *gin.Context, statusCode int, response Response) {
	c.JSON(statusCode, response)
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, Success(data))
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	JSON(c, statusCode, Error(statusCode, message))
}

// StatusFromError maps service errors to HTTP status codes
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrFormat):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromService sends an error JSON response with the status mapped
// from the service error
func ErrorFromService(c *gin.Context, err error) {
	ErrorJSON(c, StatusFromError(err), err.Error())
}
