package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"raffle/internal/models"
	"raffle/internal/services"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Ok writes a 200 envelope carrying data.
func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Error writes an envelope whose code repeats the HTTP status.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail writes a service error with the status its kind maps to.
func Fail(c *gin.Context, err error) {
	kind := services.Classify(err)
	if errors.Is(err, models.ErrInvalidIdentity) {
		kind = services.KindValidation
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	Error(c, status, err.Error(), map[string]any{"kind": kind.String()})
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindArithmetic:
		return http.StatusUnprocessableEntity
	case services.KindCapacity, services.KindConflict:
		return http.StatusConflict
	case services.KindOracle:
		return http.StatusFailedDependency
	case services.KindAuthorization:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
