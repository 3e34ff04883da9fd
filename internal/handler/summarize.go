package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medilens/internal/domain"
	"github.com/medilens/internal/service"
	"go.uber.org/zap"
)

// SummarizeHandler handles free-text summary requests.
type SummarizeHandler struct {
	analyzer *service.Analyzer
	logger   *zap.Logger
}

// NewSummarizeHandler creates a new SummarizeHandler.
func NewSummarizeHandler(analyzer *service.Analyzer, logger *zap.Logger) *SummarizeHandler {
	return &SummarizeHandler{
		analyzer: analyzer,
		logger:   logger.Named("summarize_handler"),
	}
}

// Handle processes POST /api/v1/summarize requests.
func (h *SummarizeHandler) Handle(c *gin.Context) {
	var req domain.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestLogger(c, h.logger).Warn("invalid request body", zap.Error(err))
		writeError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	writeResult(c, h.analyzer.Summarize(c.Request.Context(), req.Text))
}
