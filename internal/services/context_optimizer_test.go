package services_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/matchpulse/tips-service/internal/models"
	"github.com/matchpulse/tips-service/internal/services"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixtureMatch() *models.Match {
	return &models.Match{
		ID:          "match-1",
		HomeTeamID:  "team-home",
		AwayTeamID:  "team-away",
		HomeTeam:    "Arsenal",
		AwayTeam:    "Chelsea",
		LeagueID:    "league-1",
		LeagueName:  "Premier League",
		KickoffTime: time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC),
		Venue:       "Emirates Stadium",
		Status:      models.MatchStatusScheduled,
		OddsData: datatypes.JSON(`{
			"match_result": {"home": 1.85, "draw": 3.40, "away": 4.20},
			"totals": [{"line": 2.5, "over": 1.90, "under": 1.90}],
			"btts": {"yes": 1.72, "no": 2.05}
		}`),
	}
}

func fixtureHomeStats() *models.TeamStatistics {
	return &models.TeamStatistics{
		TeamID:        "team-home",
		LeagueID:      "league-1",
		MatchesPlayed: 15,
		Wins:          10,
		Draws:         3,
		Losses:        2,
		AvgScored:     1.8,
		AvgConceded:   0.9,
		RecentForm:    "WWDLW",
		HomeWins:      6,
		HomeDraws:     1,
		HomeLosses:    1,
	}
}

func fixtureAwayStats() *models.TeamStatistics {
	return &models.TeamStatistics{
		TeamID:        "team-away",
		LeagueID:      "league-1",
		MatchesPlayed: 15,
		Wins:          7,
		Draws:         4,
		Losses:        4,
		AvgScored:     1.4,
		AvgConceded:   1.2,
		RecentForm:    "LWDWW",
		AwayWins:      3,
		AwayDraws:     2,
		AwayLosses:    3,
	}
}

func fixtureHeadToHead() *models.HeadToHead {
	return &models.HeadToHead{
		HomeTeamID:    "team-home",
		AwayTeamID:    "team-away",
		TotalMatches:  10,
		HomeWins:      4,
		Draws:         3,
		AwayWins:      3,
		AvgTotalGoals: 2.7,
		RecentResults: "2-1, 0-0, 1-3",
	}
}

func TestBuildContext_LowMaturityOmitsSummariesAndHeadToHead(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	ctx := optimizer.BuildContext(services.ContextInput{
		Match:      fixtureMatch(),
		HomeStats:  fixtureHomeStats(),
		AwayStats:  fixtureAwayStats(),
		HeadToHead: fixtureHeadToHead(),
		Maturity:   &models.MaturityScore{MatchID: "match-1", Score: 20},
	})

	assert.Equal(t, models.DataQualityLow, ctx.Metadata.DataQuality)
	require.NotNil(t, ctx.Historical)
	assert.Empty(t, ctx.Historical.HomeSummary)
	assert.Empty(t, ctx.Historical.AwaySummary)
	assert.Empty(t, ctx.Historical.HeadToHead)
	// Recent form survives every tier.
	assert.Equal(t, "WWDLW", ctx.Historical.HomeForm)
	assert.Equal(t, "LWDWW", ctx.Historical.AwayForm)
}

func TestBuildContext_MediumMaturityIncludesSummariesNotHeadToHead(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	ctx := optimizer.BuildContext(services.ContextInput{
		Match:      fixtureMatch(),
		HomeStats:  fixtureHomeStats(),
		AwayStats:  fixtureAwayStats(),
		HeadToHead: fixtureHeadToHead(),
		Maturity:   &models.MaturityScore{MatchID: "match-1", Score: 30},
	})

	assert.Equal(t, models.DataQualityMedium, ctx.Metadata.DataQuality)
	require.NotNil(t, ctx.Historical)
	assert.Equal(t,
		"Record: 10W-3D-2L (15 matches) | Avg: 1.8 scored, 0.9 conceded | Form: WWDLW | Home: 6W-1D-1L (75% win rate)",
		ctx.Historical.HomeSummary)
	assert.Contains(t, ctx.Historical.AwaySummary, "Away: 3W-2D-3L")
	assert.Empty(t, ctx.Historical.HeadToHead, "head-to-head requires maturity >= 50")
}

func TestBuildContext_HeadToHeadFromFifty(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	input := services.ContextInput{
		Match:      fixtureMatch(),
		HomeStats:  fixtureHomeStats(),
		AwayStats:  fixtureAwayStats(),
		HeadToHead: fixtureHeadToHead(),
		Maturity:   &models.MaturityScore{MatchID: "match-1", Score: 50},
	}

	ctx := optimizer.BuildContext(input)

	assert.Equal(t, "Meetings: 10 (H 4 / D 3 / A 3) | Avg goals: 2.7 | Recent: 2-1, 0-0, 1-3", ctx.Historical.HeadToHead)

	input.Maturity.Score = 49
	assert.Empty(t, optimizer.BuildContext(input).Historical.HeadToHead)
}

func TestBuildContext_MissingMaturityMeansLow(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	ctx := optimizer.BuildContext(services.ContextInput{Match: fixtureMatch()})

	assert.Equal(t, 0.0, ctx.Maturity.Score)
	assert.Equal(t, models.DataQualityLow, ctx.Maturity.Confidence)
	assert.Nil(t, ctx.Historical)
}

func TestBuildContext_OddsExtraction(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	ctx := optimizer.BuildContext(services.ContextInput{Match: fixtureMatch()})

	require.NotNil(t, ctx.Odds)
	require.NotNil(t, ctx.Odds.MatchResult)
	assert.Equal(t, 1.85, ctx.Odds.MatchResult.Home)
	require.Len(t, ctx.Odds.Totals, 1)
	assert.Equal(t, 2.5, ctx.Odds.Totals[0].Line)
	require.NotNil(t, ctx.Odds.BothTeamsToScore)
	assert.Equal(t, 1.72, ctx.Odds.BothTeamsToScore.Yes)

	// No odds data at all.
	bare := fixtureMatch()
	bare.OddsData = nil
	assert.Nil(t, optimizer.BuildContext(services.ContextInput{Match: bare}).Odds)
}

func TestBuildContext_Deterministic(t *testing.T) {
	optimizer := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	input := services.ContextInput{
		Match:          fixtureMatch(),
		HomeStats:      fixtureHomeStats(),
		AwayStats:      fixtureAwayStats(),
		HeadToHead:     fixtureHeadToHead(),
		Maturity:       &models.MaturityScore{MatchID: "match-1", Score: 75},
		Predictability: &models.PredictabilityScore{MatchID: "match-1", Score: 60, Factors: "stable lineups"},
	}

	first := optimizer.BuildContext(input)
	second := optimizer.BuildContext(input)

	assert.Equal(t, first, second)
	assert.Positive(t, first.Metadata.TokenEstimate)
}

func TestBuildContext_DegradationUnderTightBudget(t *testing.T) {
	roomy := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())
	tight := services.NewContextOptimizer(services.OptimizerConfig{
		MaxPromptTokens:    100,
		SystemPromptBudget: 40,
		InstructionsBudget: 40,
		HistoricalBudget:   20,
	}, testLogger())

	input := services.ContextInput{
		Match:          fixtureMatch(),
		HomeStats:      fixtureHomeStats(),
		AwayStats:      fixtureAwayStats(),
		HeadToHead:     fixtureHeadToHead(),
		Maturity:       &models.MaturityScore{MatchID: "match-1", Score: 80},
		Predictability: &models.PredictabilityScore{MatchID: "match-1", Score: 60, Factors: "stable lineups"},
	}

	full := roomy.BuildContext(input)
	degraded := tight.BuildContext(input)

	require.NotNil(t, full.Historical)
	assert.NotEmpty(t, full.Historical.HeadToHead)

	require.NotNil(t, degraded.Historical)
	assert.Empty(t, degraded.Historical.HeadToHead, "head-to-head is dropped first")
	require.NotNil(t, degraded.Predictability)
	assert.Empty(t, degraded.Predictability.Factors, "predictability factors are dropped first")
	assert.LessOrEqual(t, len(strings.Split(degraded.Historical.HomeSummary, " | ")), 3,
		"team summaries are truncated to three segments")

	assert.Less(t, degraded.Metadata.TokenEstimate, full.Metadata.TokenEstimate,
		"degradation never increases the estimate")
}

func TestBuildContext_HistoricalBudgetCapsDegradation(t *testing.T) {
	// A generous prompt budget with a small historical budget still forces
	// degradation: the historical cap binds on its own.
	capped := services.NewContextOptimizer(services.OptimizerConfig{
		MaxPromptTokens:    10000,
		SystemPromptBudget: 300,
		InstructionsBudget: 500,
		HistoricalBudget:   20,
	}, testLogger())
	roomy := services.NewContextOptimizer(services.DefaultOptimizerConfig(), testLogger())

	input := services.ContextInput{
		Match:      fixtureMatch(),
		HomeStats:  fixtureHomeStats(),
		AwayStats:  fixtureAwayStats(),
		HeadToHead: fixtureHeadToHead(),
		Maturity:   &models.MaturityScore{MatchID: "match-1", Score: 80},
	}

	full := roomy.BuildContext(input)
	degraded := capped.BuildContext(input)

	require.NotNil(t, full.Historical)
	assert.NotEmpty(t, full.Historical.HeadToHead)

	require.NotNil(t, degraded.Historical)
	assert.Empty(t, degraded.Historical.HeadToHead)
	assert.Less(t, degraded.Metadata.TokenEstimate, full.Metadata.TokenEstimate)
}
