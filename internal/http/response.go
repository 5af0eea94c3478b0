package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront-auth/internal/domain"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Code    string       `json:"code"`
	Details []fieldError `json:"details,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func writeSuccess(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successResponse{Success: true, Message: message, Data: data})
}

// writeError traduce un error de dominio a status y código estable. Cualquier
// otro error se registra y sale como 500 genérico.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	de, ok := domain.AsError(err)
	if !ok || de.Kind == domain.KindInternal {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
		de = domain.ErrInternal
	}
	c.AbortWithStatusJSON(statusFor(de.Kind), errorResponse{
		Success: false,
		Message: de.Message,
		Code:    de.Code,
	})
}

// writeBindError responde 400 con el detalle de cada campo inválido.
func writeBindError(c *gin.Context, err error) {
	resp := errorResponse{
		Success: false,
		Message: domain.ErrValidation.Message,
		Code:    domain.ErrValidation.Code,
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Details = append(resp.Details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTooManyRequests:
		return http.StatusTooManyRequests
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
