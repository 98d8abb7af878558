package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/matchpulse/tips-service/internal/services"
	"github.com/matchpulse/tips-service/internal/websocket"
)

// HealthHandler handles health and readiness endpoints.
type HealthHandler struct {
	db           *gorm.DB
	redisClient  *redis.Client
	ollamaClient *services.OllamaClient
	wsHub        *websocket.TipHub
	logger       *logrus.Logger
}

// HealthResponse is the full health check response.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one dependency's check result.
type HealthCheck struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Latency   string    `json:"latency,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ReadinessResponse is the readiness probe response.
type ReadinessResponse struct {
	Ready     bool            `json:"ready"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
	Checks    map[string]bool `json:"checks"`
}

var startTime = time.Now()

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, ollamaClient *services.OllamaClient, wsHub *websocket.TipHub, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redisClient:  redisClient,
		ollamaClient: ollamaClient,
		wsHub:        wsHub,
		logger:       logger,
	}
}

// GetHealth performs full dependency checks. A dead database is unhealthy;
// Redis or the model backend being down only degrades the service, since
// generation fails closed and reads still work.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	h.logger.Debug("Health check requested")

	checks := make(map[string]HealthCheck)
	overallStatus := "healthy"

	dbCheck := h.checkDatabase()
	checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		overallStatus = "unhealthy"
	}

	redisCheck := h.checkRedis(c.Request.Context())
	checks["redis"] = redisCheck
	if redisCheck.Status != "healthy" && overallStatus == "healthy" {
		overallStatus = "degraded"
	}

	ollamaCheck := h.checkOllama(c.Request.Context())
	checks["model_backend"] = ollamaCheck
	if ollamaCheck.Status != "healthy" && overallStatus == "healthy" {
		overallStatus = "degraded"
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Service:   "tips-service",
		Version:   "1.0.0",
		Uptime:    time.Since(startTime).String(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetReady checks whether the service can serve generation requests.
func (h *HealthHandler) GetReady(c *gin.Context) {
	h.logger.Debug("Readiness check requested")

	checks := map[string]bool{
		"database":      h.isDatabaseReady(),
		"redis":         h.isRedisReady(c.Request.Context()),
		"model_backend": h.ollamaClient.Health(c.Request.Context()),
	}

	ready := true
	for _, check := range checks {
		if !check {
			ready = false
			break
		}
	}

	response := ReadinessResponse{
		Ready:     ready,
		Timestamp: time.Now(),
		Service:   "tips-service",
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetStats reports lightweight runtime statistics.
func (h *HealthHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "tips-service",
		"timestamp":      time.Now(),
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"websocket":      h.wsHub.GetHubStats(),
	})
}

func (h *HealthHandler) checkDatabase() HealthCheck {
	start := time.Now()

	sqlDB, err := h.db.DB()
	if err != nil {
		return HealthCheck{
			Status:    "unhealthy",
			Message:   "Failed to get database instance",
			CheckedAt: time.Now(),
		}
	}

	if err := sqlDB.Ping(); err != nil {
		return HealthCheck{
			Status:    "unhealthy",
			Message:   "Database ping failed: " + err.Error(),
			CheckedAt: time.Now(),
		}
	}

	latency := time.Since(start)
	status := "healthy"
	if latency > 100*time.Millisecond {
		status = "slow"
	}

	return HealthCheck{
		Status:    status,
		Latency:   latency.String(),
		CheckedAt: time.Now(),
	}
}

func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	start := time.Now()

	if _, err := h.redisClient.Ping(ctx).Result(); err != nil {
		return HealthCheck{
			Status:    "unhealthy",
			Message:   "Redis ping failed: " + err.Error(),
			CheckedAt: time.Now(),
		}
	}

	latency := time.Since(start)
	status := "healthy"
	if latency > 50*time.Millisecond {
		status = "slow"
	}

	return HealthCheck{
		Status:    status,
		Latency:   latency.String(),
		CheckedAt: time.Now(),
	}
}

func (h *HealthHandler) checkOllama(ctx context.Context) HealthCheck {
	start := time.Now()

	if !h.ollamaClient.Health(ctx) {
		return HealthCheck{
			Status:    "unhealthy",
			Message:   "Model backend unreachable",
			CheckedAt: time.Now(),
		}
	}

	return HealthCheck{
		Status:    "healthy",
		Latency:   time.Since(start).String(),
		CheckedAt: time.Now(),
	}
}

func (h *HealthHandler) isDatabaseReady() bool {
	sqlDB, err := h.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

func (h *HealthHandler) isRedisReady(ctx context.Context) bool {
	_, err := h.redisClient.Ping(ctx).Result()
	return err == nil
}
