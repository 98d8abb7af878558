package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
	"github.com/matchpulse/tips-service/internal/repository"
	"github.com/matchpulse/tips-service/internal/services"
	"github.com/matchpulse/tips-service/internal/websocket"
	"github.com/matchpulse/tips-service/pkg/config"
)

// GenerationHandler exposes the tip generation endpoint.
type GenerationHandler struct {
	matches   *repository.MatchRepository
	generator *services.TipGenerator
	wsHub     *websocket.TipHub
	config    *config.Config
	logger    *logrus.Logger
}

// GenerateTipRequest is the request body for POST /api/v1/tips/generate.
type GenerateTipRequest struct {
	MatchIDs        []string `json:"match_ids" binding:"required"`
	CompetitionType string   `json:"competition_type"`
	Title           string   `json:"title"`
	AutoPublish     bool     `json:"auto_publish"`
	BatchID         string   `json:"batch_id"`
}

// NewGenerationHandler creates a generation handler.
func NewGenerationHandler(
	matches *repository.MatchRepository,
	generator *services.TipGenerator,
	wsHub *websocket.TipHub,
	config *config.Config,
	logger *logrus.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		matches:   matches,
		generator: generator,
		wsHub:     wsHub,
		config:    config,
		logger:    logger,
	}
}

// GenerateTip runs one generation attempt for the requested match batch.
func (h *GenerationHandler) GenerateTip(c *gin.Context) {
	var request GenerateTipRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid tip generation request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := h.validateGenerateRequest(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"match_ids":        request.MatchIDs,
		"competition_type": request.CompetitionType,
		"auto_publish":     request.AutoPublish,
	}).Info("Processing tip generation request")

	matches, err := h.matches.ListMatchesByIDs(c.Request.Context(), request.MatchIDs)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load match batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load matches"})
		return
	}
	if missing := missingMatchIDs(request.MatchIDs, matches); len(missing) > 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown match IDs", "details": missing})
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), matches, services.GenerateTipOptions{
		CompetitionType: request.CompetitionType,
		TitleTemplate:   request.Title,
		AutoPublish:     request.AutoPublish,
		BatchID:         request.BatchID,
	})
	if err != nil {
		h.respondGenerationError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": nil})
		return
	}

	h.wsHub.BroadcastTip(sharedLeagueID(matches), result.Tip)

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   result.Tip,
		"meta": gin.H{
			"batch_id":       result.Tip.GenerationBatchID,
			"latency_ms":     result.LatencyMs,
			"token_estimate": result.MergedContext.Metadata.TokenEstimate,
			"data_quality":   result.MergedContext.Metadata.DataQuality,
		},
	})
}

// respondGenerationError maps pipeline failures onto HTTP statuses: rejected
// model output is 422, backend and connectivity failures are 502/503.
func (h *GenerationHandler) respondGenerationError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		h.logger.WithField("errors", validationErr.Result.Errors).Warn("Generated tip rejected")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Generated tip failed validation",
			"errors":   validationErr.Result.Errors,
			"warnings": validationErr.Result.Warnings,
		})
		return
	}

	var parseErr *services.ParseError
	if errors.As(err, &parseErr) {
		h.logger.WithError(err).Warn("Model output could not be parsed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Model returned unparseable output", "preview": parseErr.Preview})
		return
	}

	if services.IsConnectivityError(err) {
		h.logger.WithError(err).Error("Model backend unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model backend unreachable"})
		return
	}
	if services.IsBackendError(err) {
		h.logger.WithError(err).Error("Model backend rejected the request")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Model backend error", "details": err.Error()})
		return
	}

	h.logger.WithError(err).Error("Tip generation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Tip generation failed", "details": err.Error()})
}

func (h *GenerationHandler) validateGenerateRequest(request *GenerateTipRequest) error {
	if len(request.MatchIDs) == 0 {
		return fmt.Errorf("at least one match ID is required")
	}
	if len(request.MatchIDs) > h.config.MaxSelectionsPerTip {
		return fmt.Errorf("at most %d matches per batch", h.config.MaxSelectionsPerTip)
	}
	seen := make(map[string]bool, len(request.MatchIDs))
	for _, id := range request.MatchIDs {
		if id == "" {
			return fmt.Errorf("match IDs must be non-empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate match ID %s", id)
		}
		seen[id] = true
	}
	return nil
}

func missingMatchIDs(requested []string, found []models.Match) []string {
	present := make(map[string]bool, len(found))
	for _, m := range found {
		present[m.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// sharedLeagueID returns the batch's league when every match agrees on one,
// empty otherwise.
func sharedLeagueID(matches []models.Match) string {
	if len(matches) == 0 {
		return ""
	}
	leagueID := matches[0].LeagueID
	for _, m := range matches[1:] {
		if m.LeagueID != leagueID {
			return ""
		}
	}
	return leagueID
}
