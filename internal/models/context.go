package models

import (
	"time"
)

// Data-quality tiers derived from the maturity score.
const (
	DataQualityLow    = "low"
	DataQualityMedium = "medium"
	DataQualityHigh   = "high"
)

// DataQualityForScore maps a maturity score onto its tier.
// Below 30 is "low", 30 up to 70 is "medium", 70 and above is "high".
func DataQualityForScore(score float64) string {
	switch {
	case score < 30:
		return DataQualityLow
	case score < 70:
		return DataQualityMedium
	default:
		return DataQualityHigh
	}
}

// OptimizedContext is the token-bounded statistical summary handed to the
// language model. It is never persisted; its lifetime is one generation call.
type OptimizedContext struct {
	Match          ContextMatch           `json:"match"`
	Odds           *ContextOdds           `json:"odds,omitempty"`
	Historical     *ContextHistorical     `json:"historical,omitempty"`
	Importance     *ContextImportance     `json:"importance,omitempty"`
	Predictability *ContextPredictability `json:"predictability,omitempty"`
	Maturity       ContextMaturity        `json:"maturity"`
	Metadata       ContextMetadata        `json:"metadata"`
}

// ContextMatch carries the identity fields of the fixture.
type ContextMatch struct {
	MatchID     string    `json:"match_id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	League      string    `json:"league"`
	KickoffTime time.Time `json:"kickoff_time"`
	Venue       string    `json:"venue,omitempty"`
	Round       string    `json:"round,omitempty"`
	Season      string    `json:"season,omitempty"`
}

// ContextOdds carries only the markets actually present in the odds blob.
type ContextOdds struct {
	MatchResult      *MatchResultOdds `json:"match_result,omitempty"`
	Totals           []TotalsOdds     `json:"totals,omitempty"`
	BothTeamsToScore *BTTSOdds        `json:"both_teams_to_score,omitempty"`
}

// ContextHistorical carries compressed human-readable statistics summaries.
// Summaries are pipe-separated segment strings, not raw JSON, which is what
// keeps the token cost low.
type ContextHistorical struct {
	HomeSummary string `json:"home_summary,omitempty"`
	AwaySummary string `json:"away_summary,omitempty"`
	HomeForm    string `json:"home_form,omitempty"`
	AwayForm    string `json:"away_form,omitempty"`
	HeadToHead  string `json:"head_to_head,omitempty"`
}

// ContextImportance carries per-team importance ratings.
type ContextImportance struct {
	HomeScore float64 `json:"home_score"`
	AwayScore float64 `json:"away_score"`
	Notes     string  `json:"notes,omitempty"`
}

// ContextPredictability carries the predictability score with optional
// factor detail. Factors are the first section dropped under token pressure.
type ContextPredictability struct {
	Score   float64 `json:"score"`
	Factors string  `json:"factors,omitempty"`
}

// ContextMaturity carries the maturity score and its confidence tier.
type ContextMaturity struct {
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// ContextMetadata describes the built context itself.
type ContextMetadata struct {
	TokenEstimate int    `json:"token_estimate"`
	DataQuality   string `json:"data_quality"`
}
