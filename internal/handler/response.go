// Package handler contains HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// statusFor maps a Result to its HTTP status code.
func statusFor[T any](res domain.Result[T]) int {
	switch {
	case res.Ok():
		return http.StatusOK
	case res.Kind() == domain.FailureInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeResult[T any](c *gin.Context, res domain.Result[T]) {
	c.JSON(statusFor(res), res)
}

// writeError answers with a failure body outside the Result vocabulary,
// such as a malformed request or a store error.
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// requestLogger returns logger tagged with the request id set by RequestIDMiddleware.
func requestLogger(c *gin.Context, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("request_id", requestID(c)))
}

func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(requestIDHeader); id != "" {
		return id
	}
	return generateRequestID()
}

func generateRequestID() string {
	return uuid.NewString()
}
