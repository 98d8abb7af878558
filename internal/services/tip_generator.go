package services

import (
	"context"
	"crypto/md5"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
)

// ContextSource is the read surface the orchestrator needs for building
// per-match contexts and letting the validator verify references.
type ContextSource interface {
	MatchLookup
	GetTeamStatistics(ctx context.Context, teamID, leagueID string) (*models.TeamStatistics, error)
	GetHeadToHead(ctx context.Context, homeTeamID, awayTeamID string) (*models.HeadToHead, error)
	GetImportanceRating(ctx context.Context, teamID, leagueID string) (*models.ImportanceRating, error)
	GetPredictabilityScore(ctx context.Context, matchID string) (*models.PredictabilityScore, error)
	GetMaturityScore(ctx context.Context, matchID string) (*models.MaturityScore, error)
}

// TipStore is the transactional write surface for persisting tip graphs.
type TipStore interface {
	CreateTipGraph(ctx context.Context, tip *models.Tip, selections []models.TipSelection) (*models.Tip, error)
}

// TextGenerator is the slice of LLM gateway behavior the orchestrator uses.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, system string) (*GenerateResponse, error)
	Model() string
}

// GeneratorConfig configures one orchestrator instance.
type GeneratorConfig struct {
	PromptVersion    string
	ResponseCacheTTL time.Duration
}

// GenerateTipOptions parameterizes one generation attempt.
type GenerateTipOptions struct {
	CompetitionType string
	TitleTemplate   string
	AutoPublish     bool
	BatchID         string
}

// GenerationResult is the successful outcome of one generation attempt.
type GenerationResult struct {
	Tip           *models.Tip              `json:"tip"`
	MergedContext *models.OptimizedContext `json:"merged_context"`
	LatencyMs     int64                    `json:"latency_ms"`
}

// TipGenerator orchestrates context building, prompting, generation,
// validation, and the transactional persistence of one tip per batch.
type TipGenerator struct {
	optimizer *ContextOptimizer
	prompts   *PromptBuilder
	llm       TextGenerator
	validator *TipValidator
	source    ContextSource
	tips      TipStore
	cache     *CacheService
	cfg       GeneratorConfig
	logger    *logrus.Logger
}

func NewTipGenerator(
	optimizer *ContextOptimizer,
	prompts *PromptBuilder,
	llm TextGenerator,
	validator *TipValidator,
	source ContextSource,
	tips TipStore,
	cache *CacheService,
	cfg GeneratorConfig,
	logger *logrus.Logger,
) *TipGenerator {
	return &TipGenerator{
		optimizer: optimizer,
		prompts:   prompts,
		llm:       llm,
		validator: validator,
		source:    source,
		tips:      tips,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Generate runs one atomic generation attempt for a batch of matches. An
// empty batch is a no-op, not an error. Every failure path logs the elapsed
// latency and leaves no partial Tip/TipSelection state.
func (g *TipGenerator) Generate(ctx context.Context, matches []models.Match, opts GenerateTipOptions) (*GenerationResult, error) {
	start := time.Now()

	if len(matches) == 0 {
		g.logger.Info("Tip generation invoked with empty match batch; nothing to do")
		return nil, nil
	}

	batchID := opts.BatchID
	if batchID == "" {
		batchID = fmt.Sprintf("%s-%s", normalizeBatchPrefix(opts.CompetitionType), uuid.New().String())
	}

	log := g.logger.WithFields(logrus.Fields{
		"batch_id":         batchID,
		"competition_type": opts.CompetitionType,
		"match_count":      len(matches),
	})
	log.Info("Starting tip generation")

	contexts := g.buildContexts(ctx, matches)
	merged := MergeContexts(contexts)

	systemPrompt := g.prompts.SystemPrompt(merged.Maturity.Score)
	userPrompt := g.prompts.AccumulatorPrompt(contexts, opts.CompetitionType)

	rawText, err := g.generateText(ctx, userPrompt, systemPrompt)
	if err != nil {
		log.WithError(err).WithField("latency_ms", time.Since(start).Milliseconds()).Error("Generation request failed")
		return nil, fmt.Errorf("tip generation failed for batch %s: %w", batchID, err)
	}

	candidate, err := g.validator.ParseCandidate(rawText)
	if err != nil {
		log.WithError(err).WithField("latency_ms", time.Since(start).Milliseconds()).Error("Failed to parse model output")
		return nil, err
	}

	matchIDs := make([]string, len(matches))
	for i, m := range matches {
		matchIDs[i] = m.ID
	}

	validation := g.validator.Validate(ctx, candidate, matchIDs)
	for _, warning := range validation.Warnings {
		log.WithField("warning", warning).Warn("Tip validation warning")
	}
	if !validation.IsValid {
		log.WithFields(logrus.Fields{
			"errors":     validation.Errors,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Error("Candidate tip rejected by validation")
		return nil, &ValidationError{Result: validation}
	}

	tip, selections := g.buildTipGraph(candidate, merged, batchID, opts)

	saved, err := g.tips.CreateTipGraph(ctx, tip, selections)
	if err != nil {
		log.WithError(err).WithField("latency_ms", time.Since(start).Milliseconds()).Error("Failed to persist tip")
		return nil, fmt.Errorf("failed to persist tip for batch %s: %w", batchID, err)
	}

	latency := time.Since(start).Milliseconds()
	log.WithFields(logrus.Fields{
		"tip_id":     saved.ID,
		"selections": len(saved.Selections),
		"confidence": saved.Confidence,
		"latency_ms": latency,
	}).Info("Tip generation completed")

	return &GenerationResult{
		Tip:           saved,
		MergedContext: merged,
		LatencyMs:     latency,
	}, nil
}

// buildContexts fans out per-match context building. A failed related-record
// lookup degrades that match's context instead of failing the batch.
func (g *TipGenerator) buildContexts(ctx context.Context, matches []models.Match) []*models.OptimizedContext {
	contexts := make([]*models.OptimizedContext, len(matches))

	var wg sync.WaitGroup
	for i := range matches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := g.loadContextInput(ctx, &matches[i])
			contexts[i] = g.optimizer.BuildContext(input)
		}(i)
	}
	wg.Wait()

	return contexts
}

// loadContextInput gathers the optional related records for one match.
// Lookup failures are logged and leave the corresponding field nil.
func (g *TipGenerator) loadContextInput(ctx context.Context, match *models.Match) ContextInput {
	input := ContextInput{Match: match}

	var err error
	if input.HomeStats, err = g.source.GetTeamStatistics(ctx, match.HomeTeamID, match.LeagueID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Home statistics lookup failed; degrading context")
	}
	if input.AwayStats, err = g.source.GetTeamStatistics(ctx, match.AwayTeamID, match.LeagueID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Away statistics lookup failed; degrading context")
	}
	if input.HeadToHead, err = g.source.GetHeadToHead(ctx, match.HomeTeamID, match.AwayTeamID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Head-to-head lookup failed; degrading context")
	}
	if input.Maturity, err = g.source.GetMaturityScore(ctx, match.ID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Maturity lookup failed; degrading context")
	}
	if input.HomeImportance, err = g.source.GetImportanceRating(ctx, match.HomeTeamID, match.LeagueID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Home importance lookup failed; degrading context")
	}
	if input.AwayImportance, err = g.source.GetImportanceRating(ctx, match.AwayTeamID, match.LeagueID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Away importance lookup failed; degrading context")
	}
	if input.Predictability, err = g.source.GetPredictabilityScore(ctx, match.ID); err != nil {
		g.logger.WithError(err).WithField("match_id", match.ID).Warn("Predictability lookup failed; degrading context")
	}

	return input
}

// generateText invokes the gateway exactly once per generation attempt,
// consulting the response cache first when one is configured.
func (g *TipGenerator) generateText(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	var cacheKey string
	if g.cache != nil {
		hash := md5.Sum([]byte(systemPrompt + "\x00" + userPrompt))
		cacheKey = g.cache.BuildKey("llm-response", fmt.Sprintf("%x", hash))

		var cached string
		if err := g.cache.Get(ctx, cacheKey, &cached); err == nil {
			g.logger.WithField("cache_key", cacheKey).Debug("Using cached model response")
			return cached, nil
		}
	}

	resp, err := g.llm.Generate(ctx, userPrompt, systemPrompt)
	if err != nil {
		return "", err
	}

	if g.cache != nil {
		ttl := g.cfg.ResponseCacheTTL
		if ttl <= 0 {
			ttl = ModelResponseTTL
		}
		if err := g.cache.Set(ctx, cacheKey, resp.Response, ttl); err != nil {
			g.logger.WithError(err).Debug("Failed to cache model response")
		}
	}

	return resp.Response, nil
}

// buildTipGraph maps a validated candidate onto the persistent tip graph.
func (g *TipGenerator) buildTipGraph(candidate *models.CandidateTip, merged *models.OptimizedContext, batchID string, opts GenerateTipOptions) (*models.Tip, []models.TipSelection) {
	title := candidate.Title
	if opts.TitleTemplate != "" {
		title = opts.TitleTemplate
	}

	totalOdds := 1.0
	for _, sel := range candidate.Selections {
		totalOdds *= sel.Odds
	}
	if candidate.TotalOdds != nil {
		totalOdds = *candidate.TotalOdds
	}

	confidence := 0.0
	if candidate.Confidence != nil {
		confidence = *candidate.Confidence
	}

	tip := &models.Tip{
		Title:             title,
		Description:       candidate.Description,
		TotalOdds:         totalOdds,
		Confidence:        confidence,
		Reasoning:         candidate.Reasoning,
		ModelVersion:      g.llm.Model(),
		PromptVersion:     g.cfg.PromptVersion,
		DataMaturityScore: merged.Maturity.Score,
		GenerationBatchID: batchID,
		IsPublished:       opts.AutoPublish,
	}

	selections := make([]models.TipSelection, len(candidate.Selections))
	for i, sel := range candidate.Selections {
		selConfidence := 0.0
		if sel.Confidence != nil {
			selConfidence = *sel.Confidence
		}
		selections[i] = models.TipSelection{
			MatchID:         sel.MatchID,
			PredictionType:  strings.ToLower(sel.PredictionType),
			PredictionValue: strings.ToLower(sel.PredictionValue),
			Odds:            sel.Odds,
			Confidence:      selConfidence,
			Reasoning:       sel.Reasoning,
		}
	}

	return tip, selections
}

// MergeContexts combines per-match contexts into one synthetic accumulator
// context: token estimates sum, the maturity score is the arithmetic mean
// rounded to the nearest integer, and the confidence tier is re-derived from
// that mean.
func MergeContexts(contexts []*models.OptimizedContext) *models.OptimizedContext {
	if len(contexts) == 1 {
		return contexts[0]
	}

	ids := make([]string, len(contexts))
	totalTokens := 0
	maturitySum := 0.0
	for i, ctx := range contexts {
		ids[i] = ctx.Match.MatchID
		totalTokens += ctx.Metadata.TokenEstimate
		maturitySum += ctx.Maturity.Score
	}

	meanMaturity := math.Round(maturitySum / float64(len(contexts)))
	quality := models.DataQualityForScore(meanMaturity)

	return &models.OptimizedContext{
		Match: models.ContextMatch{
			MatchID: strings.Join(ids, "+"),
		},
		Maturity: models.ContextMaturity{
			Score:      meanMaturity,
			Confidence: quality,
		},
		Metadata: models.ContextMetadata{
			TokenEstimate: totalTokens,
			DataQuality:   quality,
		},
	}
}

func normalizeBatchPrefix(competitionType string) string {
	prefix := strings.ToLower(strings.TrimSpace(competitionType))
	if prefix == "" {
		return "batch"
	}
	return strings.ReplaceAll(prefix, " ", "-")
}
