package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/service"
	"go.uber.org/zap"
)

// ChatHandler serves the health chat and its session history.
type ChatHandler struct {
	assistant *service.Assistant
	logger    *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(assistant *service.Assistant, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		logger:    logger.Named("chat_handler"),
	}
}

// Ask processes POST /api/v1/chat requests.
func (h *ChatHandler) Ask(c *gin.Context) {
	startTime := time.Now()
	logger := requestLogger(c, h.logger)

	var req domain.HealthQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", zap.Error(err))
		writeError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := h.assistant.Ask(c.Request.Context(), strings.TrimSpace(req.SessionID), req.Query)

	logger.Info("chat answered",
		zap.Bool("success", res.Ok()),
		zap.String("kind", string(res.Kind())),
		zap.Duration("duration", time.Since(startTime)),
	)
	writeResult(c, res)
}

// History processes GET /api/v1/chat/:session requests.
func (h *ChatHandler) History(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	messages, err := h.assistant.History(c.Request.Context(), c.Param("session"), limit)
	if err != nil {
		requestLogger(c, h.logger).Error("failed to load chat history", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Could not load chat history")
		return
	}
	writeResult(c, domain.Succeed(messages))
}

// Clear processes DELETE /api/v1/chat/:session requests.
func (h *ChatHandler) Clear(c *gin.Context) {
	deleted, err := h.assistant.ClearHistory(c.Request.Context(), c.Param("session"))
	if err != nil {
		requestLogger(c, h.logger).Error("failed to clear chat history", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Could not clear chat history")
		return
	}
	writeResult(c, domain.Succeed(gin.H{"deleted": deleted}))
}
