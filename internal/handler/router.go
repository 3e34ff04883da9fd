package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/medilens/internal/metrics"
	"github.com/medilens/internal/service"
	"go.uber.org/zap"
)

// RouterDeps carries what the HTTP layer needs.
type RouterDeps struct {
	Reports   *service.Reports
	Assistant *service.Assistant
	Analyzer  *service.Analyzer

	// ReadyChecks run on GET /ready, keyed by name.
	ReadyChecks map[string]CheckFunc

	// MaxUploadBytes caps multipart upload bodies; zero disables the cap.
	MaxUploadBytes int64
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps RouterDeps, logger *zap.Logger) *gin.Engine {
	reportHandler := NewReportHandler(deps.Reports, deps.MaxUploadBytes, logger)
	chatHandler := NewChatHandler(deps.Assistant, logger)
	summarizeHandler := NewSummarizeHandler(deps.Analyzer, logger)
	mcpHandler := NewMCPHandler(deps.Reports, deps.Assistant, deps.Analyzer, logger)
	healthHandler := NewHealthHandler(logger)
	readyHandler := NewReadyHandler(deps.ReadyChecks, logger)

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware())

	router.GET("/health", healthHandler.Handle)
	router.GET("/ready", readyHandler.Handle)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST("/mcp", mcpHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reports/analyze", reportHandler.Analyze)
		v1.POST("/reports/upload", reportHandler.Upload)
		v1.GET("/reports", reportHandler.List)
		v1.GET("/reports/:id", reportHandler.Get)
		v1.DELETE("/reports/:id", reportHandler.Delete)

		v1.POST("/chat", chatHandler.Ask)
		v1.GET("/chat/:session", chatHandler.History)
		v1.DELETE("/chat/:session", chatHandler.Clear)

		v1.POST("/summarize", summarizeHandler.Handle)
	}

	return router
}
