package middleware

import (
	"net/http"

	"telemeet/internal/core/domain"
	apperrors "telemeet/pkg/errors"
	"telemeet/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns errors attached by handlers into the JSON
// rejection shape used on the signaling channel: {error, message, request_id}.
// AppErrors carry their own status; core errors map through the taxonomy;
// anything else is a 500.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()
		status, code, message := classify(err)

		logger.FromContext(ctx, log).Errorw("request failed",
			"code", code,
			"status", status,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err,
		)

		c.JSON(status, gin.H{
			"error":      code,
			"message":    message,
			"request_id": logger.RequestID(ctx),
		})
	}
}

func classify(err error) (status int, code, message string) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.HTTPStatus, string(appErr.Code), appErr.Message
	}

	switch c := domain.Code(err); c {
	case "AUTHENTICATION_FAILURE":
		return http.StatusUnauthorized, c, err.Error()
	case "SESSION_NOT_FOUND":
		return http.StatusNotFound, c, err.Error()
	case "CAPACITY_EXCEEDED", "DUPLICATE_IDENTITY":
		return http.StatusConflict, c, err.Error()
	case "UNAUTHORIZED_MODERATION":
		return http.StatusForbidden, c, err.Error()
	case "INVALID_EVENT":
		return http.StatusBadRequest, c, err.Error()
	default:
		return http.StatusInternalServerError, string(apperrors.ErrCodeInternal), "internal server error"
	}
}

// RecoveryMiddleware converts a handler panic into a clean 500 instead of a
// dropped connection.
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				logger.FromContext(ctx, log).Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      string(apperrors.ErrCodeInternal),
					"message":    "internal server error",
					"request_id": logger.RequestID(ctx),
				})
			}
		}()

		c.Next()
	}
}
