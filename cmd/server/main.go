package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/api/handlers"
	"github.com/matchpulse/tips-service/internal/repository"
	"github.com/matchpulse/tips-service/internal/services"
	"github.com/matchpulse/tips-service/internal/websocket"
	"github.com/matchpulse/tips-service/pkg/config"
	"github.com/matchpulse/tips-service/pkg/database"
	"github.com/matchpulse/tips-service/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("info", cfg.IsDevelopment())
	logger.WithService("tips-service").WithFields(logrus.Fields{
		"version":     "1.0.0",
		"environment": cfg.Env,
		"port":        cfg.Port,
		"model":       cfg.OllamaModel,
	}).Info("Starting tips service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewTipsServiceConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.WithService("tips-service").Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithService("tips-service").Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithService("tips-service").Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	matchRepo := repository.NewMatchRepository(db.DB)
	tipRepo := repository.NewTipRepository(db.DB, structuredLogger)

	// Core services
	cacheService := services.NewCacheService(redisClient, structuredLogger)

	ollamaCfg := services.DefaultOllamaConfig()
	ollamaCfg.BaseURL = cfg.OllamaURL
	ollamaCfg.Model = cfg.OllamaModel
	ollamaCfg.RequestTimeout = cfg.OllamaRequestTimeout
	ollamaCfg.RetryAttempts = cfg.LLMRetryAttempts
	ollamaCfg.RetryBaseDelay = cfg.LLMRetryBaseDelay
	ollamaCfg.Options = services.GenerateOptions{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		NumPredict:    cfg.MaxOutputTokens,
		RepeatPenalty: cfg.RepeatPenalty,
	}
	ollamaClient := services.NewOllamaClient(ollamaCfg, structuredLogger)
	ollamaClient.VerifyModel(ctx)

	optimizerCfg := services.OptimizerConfig{
		MaxPromptTokens:    cfg.MaxPromptTokens,
		SystemPromptBudget: cfg.SystemPromptBudget,
		InstructionsBudget: cfg.InstructionsBudget,
		HistoricalBudget:   cfg.HistoricalBudget,
	}
	contextOptimizer := services.NewContextOptimizer(optimizerCfg, structuredLogger)
	promptBuilder := services.NewPromptBuilder(structuredLogger)

	validatorCfg := services.DefaultValidatorConfig()
	validatorCfg.MaxSelections = cfg.MaxSelectionsPerTip
	tipValidator := services.NewTipValidator(matchRepo, validatorCfg, structuredLogger)

	tipGenerator := services.NewTipGenerator(
		contextOptimizer,
		promptBuilder,
		ollamaClient,
		tipValidator,
		matchRepo,
		tipRepo,
		cacheService,
		services.GeneratorConfig{
			PromptVersion:    cfg.PromptVersion,
			ResponseCacheTTL: cfg.ResponseCacheTTL,
		},
		structuredLogger,
	)

	// WebSocket hub for pushing persisted tips
	wsHub := websocket.NewTipHub(structuredLogger)
	go wsHub.Run()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	generationHandler := handlers.NewGenerationHandler(matchRepo, tipGenerator, wsHub, cfg, structuredLogger)
	tipsHandler := handlers.NewTipsHandler(tipRepo, structuredLogger)
	healthHandler := handlers.NewHealthHandler(db.DB, redisClient, ollamaClient, wsHub, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/tips/generate", generationHandler.GenerateTip)
		apiV1.GET("/tips", tipsHandler.ListTips)
		apiV1.GET("/tips/batch/:batch_id", tipsHandler.GetTipsByBatch)
	}

	// WebSocket endpoint for the tip feed
	router.GET("/ws/tips", wsHub.HandleWebSocket)

	// Health check endpoints (support both GET and HEAD)
	router.GET("/health", healthHandler.GetHealth)
	router.HEAD("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.HEAD("/ready", healthHandler.GetReady)
	router.GET("/stats", healthHandler.GetStats)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService("tips-service").WithField("port", cfg.Port).Info("Tips service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService("tips-service").Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService("tips-service").Info("Shutting down tips service...")

	// The server has 5 seconds to finish the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithService("tips-service").Fatalf("Tips service forced to shutdown: %v", err)
	}

	logger.WithService("tips-service").Info("Tips service exited")
}
