package models

import (
	"strings"
)

// Recognized prediction types for tip selections.
const (
	PredictionMatchResult     = "match_result"
	PredictionOverUnder       = "over_under"
	PredictionBTTS            = "both_teams_to_score"
	PredictionDoubleChance    = "double_chance"
	PredictionHandicap        = "handicap"
	PredictionCorrectScore    = "correct_score"
	PredictionFirstGoalScorer = "first_goal_scorer"
)

// PredictionTypes lists every recognized prediction type.
var PredictionTypes = []string{
	PredictionMatchResult,
	PredictionOverUnder,
	PredictionBTTS,
	PredictionDoubleChance,
	PredictionHandicap,
	PredictionCorrectScore,
	PredictionFirstGoalScorer,
}

// IsKnownPredictionType reports whether t is a recognized prediction type.
func IsKnownPredictionType(t string) bool {
	t = strings.ToLower(t)
	for _, known := range PredictionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CandidateTip is the structure parsed from raw model output. It exists only
// until it is validated or discarded.
type CandidateTip struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Confidence  *float64             `json:"confidence"`
	Reasoning   string               `json:"reasoning"`
	TotalOdds   *float64             `json:"totalOdds"`
	Selections  []CandidateSelection `json:"selections"`
}

// CandidateSelection is one prediction inside a candidate tip.
type CandidateSelection struct {
	MatchID         string   `json:"matchId"`
	PredictionType  string   `json:"predictionType"`
	PredictionValue string   `json:"predictionValue"`
	Odds            float64  `json:"odds"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
}

// ValidationResult accumulates the outcome of every validation rule.
// Errors block persistence; warnings are advisory only.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AddError records a blocking rule violation.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records an advisory finding.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
