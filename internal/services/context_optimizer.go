package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
)

// OptimizerConfig bounds the size of generated contexts. Budgets are in
// estimated tokens.
type OptimizerConfig struct {
	MaxPromptTokens    int
	SystemPromptBudget int
	InstructionsBudget int
	HistoricalBudget   int
}

// DefaultOptimizerConfig targets a total prompt of 2000 tokens with ~1200
// allotted to historical data.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxPromptTokens:    2000,
		SystemPromptBudget: 300,
		InstructionsBudget: 500,
		HistoricalBudget:   1200,
	}
}

// ContextInput gathers one match and its optional related records. Every
// pointer may be nil; the optimizer degrades instead of failing.
type ContextInput struct {
	Match          *models.Match
	HomeStats      *models.TeamStatistics
	AwayStats      *models.TeamStatistics
	HeadToHead     *models.HeadToHead
	Maturity       *models.MaturityScore
	HomeImportance *models.ImportanceRating
	AwayImportance *models.ImportanceRating
	Predictability *models.PredictabilityScore
}

// ContextOptimizer builds compact, token-bounded statistical summaries for
// single matches. Output is deterministic for identical inputs.
type ContextOptimizer struct {
	cfg    OptimizerConfig
	logger *logrus.Logger
}

func NewContextOptimizer(cfg OptimizerConfig, logger *logrus.Logger) *ContextOptimizer {
	return &ContextOptimizer{cfg: cfg, logger: logger}
}

// BuildContext produces an OptimizedContext for one match. It never fails:
// missing records shrink the context, and token-budget overruns trigger
// staged degradation in a fixed order.
func (o *ContextOptimizer) BuildContext(input ContextInput) *models.OptimizedContext {
	maturity := 0.0
	if input.Maturity != nil {
		maturity = input.Maturity.Score
	}
	quality := models.DataQualityForScore(maturity)

	ctx := &models.OptimizedContext{
		Match: models.ContextMatch{
			MatchID:     input.Match.ID,
			HomeTeam:    input.Match.HomeTeam,
			AwayTeam:    input.Match.AwayTeam,
			League:      input.Match.LeagueName,
			KickoffTime: input.Match.KickoffTime,
			Venue:       input.Match.Venue,
			Round:       input.Match.Round,
			Season:      input.Match.Season,
		},
		Maturity: models.ContextMaturity{
			Score:      maturity,
			Confidence: quality,
		},
	}

	ctx.Odds = extractOdds([]byte(input.Match.OddsData))
	ctx.Historical = o.buildHistorical(input, maturity)

	if input.HomeImportance != nil || input.AwayImportance != nil {
		imp := &models.ContextImportance{}
		var notes []string
		if input.HomeImportance != nil {
			imp.HomeScore = input.HomeImportance.Score
			if input.HomeImportance.Factors != "" {
				notes = append(notes, "home: "+input.HomeImportance.Factors)
			}
		}
		if input.AwayImportance != nil {
			imp.AwayScore = input.AwayImportance.Score
			if input.AwayImportance.Factors != "" {
				notes = append(notes, "away: "+input.AwayImportance.Factors)
			}
		}
		imp.Notes = strings.Join(notes, "; ")
		ctx.Importance = imp
	}

	if input.Predictability != nil {
		ctx.Predictability = &models.ContextPredictability{
			Score:   input.Predictability.Score,
			Factors: input.Predictability.Factors,
		}
	}

	ctx.Metadata = models.ContextMetadata{
		TokenEstimate: estimateTokens(ctx),
		DataQuality:   quality,
	}

	o.degrade(ctx)

	return ctx
}

// buildHistorical applies the data-quality tiering. Recent-form strings are
// included whenever present, regardless of tier.
func (o *ContextOptimizer) buildHistorical(input ContextInput, maturity float64) *models.ContextHistorical {
	hist := &models.ContextHistorical{}

	if input.HomeStats != nil {
		hist.HomeForm = input.HomeStats.RecentForm
	}
	if input.AwayStats != nil {
		hist.AwayForm = input.AwayStats.RecentForm
	}

	if maturity >= 30 {
		if input.HomeStats != nil {
			hist.HomeSummary = summarizeTeamStats(input.HomeStats, true)
		}
		if input.AwayStats != nil {
			hist.AwaySummary = summarizeTeamStats(input.AwayStats, false)
		}
	}

	if maturity >= 50 && input.HeadToHead != nil {
		hist.HeadToHead = summarizeHeadToHead(input.HeadToHead)
	}

	if hist.HomeSummary == "" && hist.AwaySummary == "" &&
		hist.HomeForm == "" && hist.AwayForm == "" && hist.HeadToHead == "" {
		return nil
	}
	return hist
}

// degrade applies the staged token-budget degradation in fixed order:
// above 120% of the available budget the head-to-head and predictability
// factor detail are dropped; above 110% each team summary is truncated to
// its first three segments. Degradation never increases the estimate.
func (o *ContextOptimizer) degrade(ctx *models.OptimizedContext) {
	// The context competes for what the system prompt and instructions leave
	// over, and never gets more than the historical budget itself.
	available := o.cfg.MaxPromptTokens - o.cfg.SystemPromptBudget - o.cfg.InstructionsBudget
	if o.cfg.HistoricalBudget > 0 && o.cfg.HistoricalBudget < available {
		available = o.cfg.HistoricalBudget
	}
	if available <= 0 {
		available = 1
	}

	if ctx.Metadata.TokenEstimate*10 > available*12 {
		if ctx.Historical != nil {
			ctx.Historical.HeadToHead = ""
		}
		if ctx.Predictability != nil {
			ctx.Predictability.Factors = ""
		}
		ctx.Metadata.TokenEstimate = estimateTokens(ctx)
	}

	if ctx.Metadata.TokenEstimate*10 > available*11 {
		if ctx.Historical != nil {
			ctx.Historical.HomeSummary = truncateSegments(ctx.Historical.HomeSummary, 3)
			ctx.Historical.AwaySummary = truncateSegments(ctx.Historical.AwaySummary, 3)
		}
		ctx.Metadata.TokenEstimate = estimateTokens(ctx)
	}

	if o.logger != nil && ctx.Metadata.TokenEstimate > available {
		o.logger.WithFields(logrus.Fields{
			"match_id":       ctx.Match.MatchID,
			"token_estimate": ctx.Metadata.TokenEstimate,
			"available":      available,
		}).Warn("Context exceeds token budget after full degradation")
	}
}

// estimateTokens approximates the token count of the serialized context as
// ceil(len/4). This is a character heuristic, not a real tokenizer; it is
// kept for parity with the budgets it was calibrated against.
func estimateTokens(ctx *models.OptimizedContext) int {
	data, err := json.Marshal(ctx)
	if err != nil {
		return 0
	}
	return (len(data) + 3) / 4
}

// truncateSegments keeps the first n pipe-separated segments of a summary.
func truncateSegments(summary string, n int) string {
	if summary == "" {
		return ""
	}
	parts := strings.Split(summary, " | ")
	if len(parts) <= n {
		return summary
	}
	return strings.Join(parts[:n], " | ")
}

// summarizeTeamStats compresses a statistics row into a short pipe-separated
// string, e.g. "Record: 10W-3D-2L (15 matches) | Avg: 1.8 scored, 0.9
// conceded | Form: WWDLW | Home: 6W-1D-1L (75% win rate)".
func summarizeTeamStats(stats *models.TeamStatistics, home bool) string {
	segments := []string{
		fmt.Sprintf("Record: %dW-%dD-%dL (%d matches)", stats.Wins, stats.Draws, stats.Losses, stats.MatchesPlayed),
		fmt.Sprintf("Avg: %.1f scored, %.1f conceded", stats.AvgScored, stats.AvgConceded),
	}
	if stats.RecentForm != "" {
		segments = append(segments, "Form: "+stats.RecentForm)
	}
	if home {
		if played := stats.HomeWins + stats.HomeDraws + stats.HomeLosses; played > 0 {
			rate := float64(stats.HomeWins) / float64(played) * 100
			segments = append(segments, fmt.Sprintf("Home: %dW-%dD-%dL (%.0f%% win rate)",
				stats.HomeWins, stats.HomeDraws, stats.HomeLosses, rate))
		}
	} else {
		if played := stats.AwayWins + stats.AwayDraws + stats.AwayLosses; played > 0 {
			rate := float64(stats.AwayWins) / float64(played) * 100
			segments = append(segments, fmt.Sprintf("Away: %dW-%dD-%dL (%.0f%% win rate)",
				stats.AwayWins, stats.AwayDraws, stats.AwayLosses, rate))
		}
	}
	return strings.Join(segments, " | ")
}

// summarizeHeadToHead compresses a head-to-head record into a short string.
func summarizeHeadToHead(h2h *models.HeadToHead) string {
	segments := []string{
		fmt.Sprintf("Meetings: %d (H %d / D %d / A %d)", h2h.TotalMatches, h2h.HomeWins, h2h.Draws, h2h.AwayWins),
		fmt.Sprintf("Avg goals: %.1f", h2h.AvgTotalGoals),
	}
	if h2h.RecentResults != "" {
		segments = append(segments, "Recent: "+h2h.RecentResults)
	}
	return strings.Join(segments, " | ")
}

// extractOdds pulls the match-result, totals, and both-teams-to-score
// markets out of the loosely-typed odds blob. Absent markets are omitted,
// never defaulted.
func extractOdds(blob []byte) *models.ContextOdds {
	markets := models.ParseOddsBlob(blob)
	if len(markets) == 0 {
		return nil
	}

	odds := &models.ContextOdds{}
	found := false
	for _, m := range markets {
		switch m.Kind {
		case models.MarketMatchResult:
			if odds.MatchResult == nil {
				odds.MatchResult = m.MatchResult
				found = true
			}
		case models.MarketTotals:
			odds.Totals = append(odds.Totals, *m.Totals)
			found = true
		case models.MarketBTTS:
			if odds.BothTeamsToScore == nil {
				odds.BothTeamsToScore = m.BTTS
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return odds
}
