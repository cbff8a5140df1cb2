package handler

import (
	"errors"
	"net/http"

	"fictures-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Коды ошибок в теле ответа.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeValidation           = "validation_error"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeForbidden            = "forbidden"
	ErrCodeNotFound             = "not_found"
	ErrCodeConflict             = "conflict"
	ErrCodeConfirmationRequired = "confirmation_required"
	ErrCodeTooManyRuns          = "too_many_runs"
	ErrCodeInternal             = "internal_error"
)

// APIError - стандартное тело ответа об ошибке.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrValidation):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Code: ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrBadRequest), errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Code: ErrCodeUnauthorized, Message: err.Error()}
	case errors.Is(err, models.ErrForbidden):
		statusCode = http.StatusForbidden
		apiErr = APIError{Code: ErrCodeForbidden, Message: "Insufficient scope"}
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrRunNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Code: ErrCodeNotFound, Message: "Resource not found or access denied"}
	case errors.Is(err, models.ErrRunNotActive), errors.Is(err, models.ErrInvalidStatus):
		statusCode = http.StatusConflict
		apiErr = APIError{Code: ErrCodeConflict, Message: err.Error()}
	case errors.Is(err, models.ErrConfirmationRequired):
		statusCode = http.StatusPreconditionFailed
		apiErr = APIError{Code: ErrCodeConfirmationRequired, Message: "Pass confirm=true to perform this operation"}
	case errors.Is(err, models.ErrTooManyRuns):
		statusCode = http.StatusTooManyRequests
		apiErr = APIError{Code: ErrCodeTooManyRuns, Message: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, apiErr)
}
