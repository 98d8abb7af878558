package services

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
)

// PromptBuilder renders deterministic system and user prompts from optimized
// contexts. It performs no LLM calls itself.
type PromptBuilder struct {
	logger *logrus.Logger
}

func NewPromptBuilder(logger *logrus.Logger) *PromptBuilder {
	return &PromptBuilder{logger: logger}
}

const systemPromptLowMaturity = `You are an expert football betting analyst. Very little reliable statistical data is available for these matches, so rely primarily on your own general knowledge of the teams, leagues, and competitions involved. Treat any supplied numbers as a weak signal only. Be conservative with confidence levels and prefer well-known, defensible picks. Respond only with the requested JSON.`

const systemPromptMediumMaturity = `You are an expert football betting analyst. A moderate amount of statistical data is supplied for these matches. Weight the supplied statistics and your own general knowledge roughly equally, and call out where they disagree in your reasoning. Respond only with the requested JSON.`

const systemPromptHighMaturity = `You are an expert football betting analyst. Rich, reliable statistical data is supplied for these matches. Ground your analysis primarily in the supplied statistics, using general knowledge only to contextualize them. Higher confidence levels are justified when the data strongly supports a pick. Respond only with the requested JSON.`

// SystemPrompt returns the instructional template for the maturity tier.
func (pb *PromptBuilder) SystemPrompt(maturityScore float64) string {
	switch models.DataQualityForScore(maturityScore) {
	case models.DataQualityLow:
		return systemPromptLowMaturity
	case models.DataQualityMedium:
		return systemPromptMediumMaturity
	default:
		return systemPromptHighMaturity
	}
}

// competitionFraming selects framing text per competition type, with a
// generic fallback for unmapped types.
var competitionFraming = map[string]string{
	"league":           "These are regular league fixtures. Table position, home advantage, and squad rotation between fixtures all matter.",
	"cup":              "These are knockout cup ties. Expect rotated squads from bigger clubs and high motivation from underdogs; upsets are common.",
	"champions_league": "These are UEFA Champions League fixtures. Squads are near full strength and tactical discipline is high; favor proven continental performers.",
	"europa_league":    "These are UEFA Europa League fixtures. Motivation varies by club priorities; check for rotation ahead of domestic fixtures.",
	"international":    "These are international fixtures. Club form translates imperfectly; cohesion and tournament stakes dominate.",
	"friendly":         "These are friendly fixtures. Results are unreliable predictors; heavy rotation and experimental lineups are expected, so keep confidence low.",
}

const genericFraming = "Analyze these football fixtures on their individual merits using the supplied data and your knowledge of the teams."

// UserPrompt renders the full user prompt for one context.
func (pb *PromptBuilder) UserPrompt(ctx *models.OptimizedContext, competitionType string) string {
	return pb.AccumulatorPrompt([]*models.OptimizedContext{ctx}, competitionType)
}

// AccumulatorPrompt renders one user prompt covering several match contexts
// with a single shared instruction block.
func (pb *PromptBuilder) AccumulatorPrompt(contexts []*models.OptimizedContext, competitionType string) string {
	var b strings.Builder

	framing, ok := competitionFraming[strings.ToLower(competitionType)]
	if !ok {
		framing = genericFraming
	}
	b.WriteString(framing)
	b.WriteString("\n\n")

	for _, ctx := range contexts {
		writeMatchSection(&b, ctx)
		writeOddsSection(&b, ctx.Odds)
		writeHistoricalSection(&b, ctx.Historical)
		writeRatingsSection(&b, ctx)
	}
	b.WriteString(instructionBlock)

	prompt := b.String()

	pb.logger.WithFields(logrus.Fields{
		"competition_type": competitionType,
		"match_count":      len(contexts),
		"prompt_length":    len(prompt),
	}).Debug("Built user prompt")

	return prompt
}

func writeMatchSection(b *strings.Builder, ctx *models.OptimizedContext) {
	b.WriteString("MATCH:\n")
	fmt.Fprintf(b, "- ID: %s\n", ctx.Match.MatchID)
	fmt.Fprintf(b, "- Fixture: %s vs %s\n", ctx.Match.HomeTeam, ctx.Match.AwayTeam)
	if ctx.Match.League != "" {
		fmt.Fprintf(b, "- League: %s\n", ctx.Match.League)
	}
	fmt.Fprintf(b, "- Kickoff: %s\n", ctx.Match.KickoffTime.UTC().Format("2006-01-02 15:04 MST"))
	if ctx.Match.Venue != "" {
		fmt.Fprintf(b, "- Venue: %s\n", ctx.Match.Venue)
	}
	if ctx.Match.Round != "" {
		fmt.Fprintf(b, "- Round: %s\n", ctx.Match.Round)
	}
	b.WriteString("\n")
}

func writeOddsSection(b *strings.Builder, odds *models.ContextOdds) {
	if odds == nil {
		return
	}
	b.WriteString("ODDS:\n")
	if odds.MatchResult != nil {
		fmt.Fprintf(b, "- 1X2: home %.2f / draw %.2f / away %.2f\n",
			odds.MatchResult.Home, odds.MatchResult.Draw, odds.MatchResult.Away)
	}
	for _, t := range odds.Totals {
		fmt.Fprintf(b, "- Totals %.1f: over %.2f / under %.2f\n", t.Line, t.Over, t.Under)
	}
	if odds.BothTeamsToScore != nil {
		fmt.Fprintf(b, "- BTTS: yes %.2f / no %.2f\n", odds.BothTeamsToScore.Yes, odds.BothTeamsToScore.No)
	}
	b.WriteString("\n")
}

func writeHistoricalSection(b *strings.Builder, hist *models.ContextHistorical) {
	b.WriteString("HISTORICAL DATA:\n")
	if hist == nil {
		b.WriteString("- Limited data available for this fixture; rely on general knowledge.\n\n")
		return
	}
	if hist.HomeSummary != "" {
		fmt.Fprintf(b, "- Home team: %s\n", hist.HomeSummary)
	}
	if hist.AwaySummary != "" {
		fmt.Fprintf(b, "- Away team: %s\n", hist.AwaySummary)
	}
	if hist.HomeSummary == "" && hist.HomeForm != "" {
		fmt.Fprintf(b, "- Home form: %s\n", hist.HomeForm)
	}
	if hist.AwaySummary == "" && hist.AwayForm != "" {
		fmt.Fprintf(b, "- Away form: %s\n", hist.AwayForm)
	}
	if hist.HeadToHead != "" {
		fmt.Fprintf(b, "- Head-to-head: %s\n", hist.HeadToHead)
	}
	b.WriteString("\n")
}

func writeRatingsSection(b *strings.Builder, ctx *models.OptimizedContext) {
	if ctx.Importance == nil && ctx.Predictability == nil {
		return
	}
	b.WriteString("RATINGS:\n")
	if ctx.Importance != nil {
		fmt.Fprintf(b, "- Match importance: home %.0f/100, away %.0f/100\n",
			ctx.Importance.HomeScore, ctx.Importance.AwayScore)
		if ctx.Importance.Notes != "" {
			fmt.Fprintf(b, "  (%s)\n", ctx.Importance.Notes)
		}
	}
	if ctx.Predictability != nil {
		fmt.Fprintf(b, "- Predictability: %.0f/100\n", ctx.Predictability.Score)
		if ctx.Predictability.Factors != "" {
			fmt.Fprintf(b, "  (%s)\n", ctx.Predictability.Factors)
		}
	}
	b.WriteString("\n")
}

const instructionBlock = `INSTRUCTIONS:
1. Produce between 1 and 5 selections.
2. Every selection must include: matchId, predictionType, predictionValue, odds, confidence (0-100), reasoning.
3. predictionType must be one of: match_result, over_under, both_teams_to_score, double_chance, handicap, correct_score, first_goal_scorer.
4. Keep every selection's odds between 1.5 and 50.0.
5. Only reference the match IDs listed above. Never invent matches.
6. Respond with exactly one JSON object matching this schema and nothing else:

{
  "title": "string (max 255 chars)",
  "description": "string",
  "confidence": 0-100,
  "reasoning": "string",
  "totalOdds": number,
  "selections": [
    {
      "matchId": "string",
      "predictionType": "match_result",
      "predictionValue": "home_win",
      "odds": 1.8,
      "confidence": 70,
      "reasoning": "string"
    }
  ]
}
`
