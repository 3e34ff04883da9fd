// MediLens - Server Entry Point
//
// This is the main entry point for the medical report analysis service.
// It initializes all dependencies and starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/medilens/internal/ai"
	"github.com/medilens/internal/archive"
	"github.com/medilens/internal/config"
	"github.com/medilens/internal/handler"
	"github.com/medilens/internal/logger"
	"github.com/medilens/internal/metrics"
	"github.com/medilens/internal/orchestrator"
	"github.com/medilens/internal/service"
	"github.com/medilens/internal/store"
	"github.com/medilens/pkg/sanitizer"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	isDev := os.Getenv("GIN_MODE") != "release"

	// Load configuration before the logger so the file sink can be configured
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var zapLogger *zap.Logger
	if cfg.Logging.File == "" {
		zapLogger, err = logger.New(isDev)
	} else {
		zapLogger, err = logger.NewWithFile(isDev, logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting MediLens",
		zap.Bool("development", isDev),
		zap.String("port", cfg.Server.Port),
		zap.String("ai_provider", string(cfg.AI.Provider)),
		zap.String("ai_model", cfg.AI.Model),
		zap.Bool("mock_mode", cfg.AI.MockMode),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("archive_enabled", cfg.Archive.Enabled()),
	)

	metrics.Init()

	ctx := context.Background()

	// AI provider
	var provider ai.Provider
	switch {
	case cfg.AI.MockMode:
		zapLogger.Warn("running in mock mode - AI responses are simulated")
		provider = ai.NewMockClient(zapLogger)
	case cfg.AI.Provider == config.AIProviderOpenAI:
		provider = ai.NewOpenAIClient(&cfg.AI, zapLogger)
	default:
		provider = ai.NewGeminiClient(&cfg.AI, zapLogger)
	}

	promptBuilder, err := ai.NewDefaultPromptBuilder()
	if err != nil {
		zapLogger.Fatal("failed to create prompt builder", zap.Error(err))
	}

	// Throttle gate, shared across replicas when Redis is configured
	var gate orchestrator.Gate
	if cfg.Orchestrator.RedisURL != "" {
		redisGate, err := orchestrator.NewRedisGate(cfg.Orchestrator.RedisURL, provider.Name(), cfg.Orchestrator.MinInterval, nil)
		if err != nil {
			zapLogger.Fatal("failed to connect throttle redis", zap.Error(err))
		}
		defer redisGate.Close()
		gate = redisGate
		zapLogger.Info("using shared redis throttle")
	} else {
		gate = orchestrator.NewLocalGate(cfg.Orchestrator.MinInterval, nil)
	}

	invoker := orchestrator.New(provider, gate, orchestrator.Options{
		Provider:       provider.Name(),
		MaxAttempts:    cfg.Orchestrator.MaxAttempts,
		RetryBaseDelay: cfg.Orchestrator.RetryBaseDelay,
	}, zapLogger)

	// Sanitizer; PII masking can be switched off, truncation cannot
	reportSanitizer := sanitizer.New(cfg.Processing.MaxContentSize)
	if !cfg.Processing.MaskPII {
		zapLogger.Warn("PII masking disabled")
		reportSanitizer = sanitizer.NewWithPatterns(cfg.Processing.MaxContentSize, nil)
	}

	// Persistence
	db, err := store.Open(ctx, cfg.Store, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	var uploads service.Archiver
	if cfg.Archive.Enabled() {
		s3Archive, err := archive.NewS3Archive(ctx, cfg.Archive, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed to initialize upload archive", zap.Error(err))
		}
		uploads = s3Archive
	}

	// Services
	analyzerSvc := service.NewAnalyzer(invoker, promptBuilder, ai.NewDefaultValidator(), reportSanitizer, zapLogger)
	reportsSvc := service.NewReports(analyzerSvc, invoker, provider, db, uploads, zapLogger)
	assistantSvc := service.NewAssistant(invoker, promptBuilder, db, zapLogger)

	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Reports:   reportsSvc,
		Assistant: assistantSvc,
		Analyzer:  analyzerSvc,
		ReadyChecks: map[string]handler.CheckFunc{
			"store":    db.Ping,
			"provider": provider.HealthCheck,
		},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down server...")

	// Give in-flight analyses 10 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("server stopped")
}
