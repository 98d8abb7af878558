package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/repository"
)

// TipsHandler exposes read endpoints over persisted tips.
type TipsHandler struct {
	tips   *repository.TipRepository
	logger *logrus.Logger
}

func NewTipsHandler(tips *repository.TipRepository, logger *logrus.Logger) *TipsHandler {
	return &TipsHandler{tips: tips, logger: logger}
}

// ListTips returns recently generated tips, newest first.
func (h *TipsHandler) ListTips(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	tips, err := h.tips.RecentTips(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tips")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   tips,
		"meta":   gin.H{"count": len(tips), "limit": limit},
	})
}

// GetTipsByBatch returns every tip produced under one generation batch.
func (h *TipsHandler) GetTipsByBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_id is required"})
		return
	}

	tips, err := h.tips.TipsByBatch(c.Request.Context(), batchID)
	if err != nil {
		h.logger.WithError(err).WithField("batch_id", batchID).Error("Failed to load batch tips")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch tips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   tips,
		"meta":   gin.H{"batch_id": batchID, "count": len(tips)},
	})
}
