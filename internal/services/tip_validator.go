package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
)

// MatchLookup is the slice of match repository behavior the validator needs.
type MatchLookup interface {
	GetMatchByID(ctx context.Context, matchID string) (*models.Match, error)
}

// ValidatorConfig bounds accepted candidate tips.
type ValidatorConfig struct {
	MaxSelections      int
	TitleMaxLen        int
	ValueMaxLen        int
	ReasoningMaxLen    int
	TotalOddsWarnAbove float64
	OddsWarnAbove      float64
	TotalOddsTolerance float64
	ParsePreviewMaxLen int
}

// DefaultValidatorConfig returns the documented validation bounds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxSelections:      50,
		TitleMaxLen:        255,
		ValueMaxLen:        100,
		ReasoningMaxLen:    500,
		TotalOddsWarnAbove: 1000,
		OddsWarnAbove:      100,
		TotalOddsTolerance: 0.1,
		ParsePreviewMaxLen: 200,
	}
}

// ValidationError carries the full validation result so callers can inspect
// every accumulated error and warning, not only the first.
type ValidationError struct {
	Result models.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tip validation failed: %s", strings.Join(e.Result.Errors, "; "))
}

// ParseError signals malformed model output. The preview is truncated so log
// sizes stay bounded.
type ParseError struct {
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model output (preview: %q): %v", e.Preview, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TipValidator is the fail-closed acceptance gate between untrusted
// generated text and durable storage.
type TipValidator struct {
	matches MatchLookup
	cfg     ValidatorConfig
	logger  *logrus.Logger
}

func NewTipValidator(matches MatchLookup, cfg ValidatorConfig, logger *logrus.Logger) *TipValidator {
	return &TipValidator{matches: matches, cfg: cfg, logger: logger}
}

// ParseCandidate extracts the first JSON object from raw model output. The
// model may prepend or append prose around the JSON.
func (v *TipValidator) ParseCandidate(raw string) (*models.CandidateTip, error) {
	jsonText, ok := extractFirstJSONObject(raw)
	if !ok {
		return nil, &ParseError{Preview: truncate(raw, v.cfg.ParsePreviewMaxLen), Err: fmt.Errorf("no JSON object found")}
	}

	var candidate models.CandidateTip
	if err := json.Unmarshal([]byte(jsonText), &candidate); err != nil {
		return nil, &ParseError{Preview: truncate(raw, v.cfg.ParsePreviewMaxLen), Err: err}
	}

	return &candidate, nil
}

// Validate runs the ordered check set against a parsed candidate. Errors are
// fatal; warnings accumulate without blocking. Validity depends only on the
// error list.
func (v *TipValidator) Validate(ctx context.Context, candidate *models.CandidateTip, batchMatchIDs []string) models.ValidationResult {
	result := models.ValidationResult{IsValid: true}

	if strings.TrimSpace(candidate.Title) == "" {
		result.AddError("title is required")
	} else if utf8.RuneCountInString(candidate.Title) > v.cfg.TitleMaxLen {
		result.AddError(fmt.Sprintf("title exceeds %d characters", v.cfg.TitleMaxLen))
	}

	if len(candidate.Selections) == 0 {
		result.AddError("at least one selection is required")
	} else if len(candidate.Selections) > v.cfg.MaxSelections {
		result.AddError(fmt.Sprintf("too many selections: %d (maximum %d)", len(candidate.Selections), v.cfg.MaxSelections))
	}

	if candidate.Confidence == nil {
		result.AddWarning("tip confidence is missing")
	} else if *candidate.Confidence < 0 || *candidate.Confidence > 100 {
		result.AddError(fmt.Sprintf("tip confidence %.1f is outside [0,100]", *candidate.Confidence))
	}

	v.checkTotalOdds(candidate, &result)

	batchSet := make(map[string]struct{}, len(batchMatchIDs))
	for _, id := range batchMatchIDs {
		batchSet[id] = struct{}{}
	}

	seen := make(map[string]int)
	for i, sel := range candidate.Selections {
		v.checkSelection(ctx, i+1, sel, batchSet, &result)

		key := fmt.Sprintf("%s|%s|%s", sel.MatchID, strings.ToLower(sel.PredictionType), strings.ToLower(sel.PredictionValue))
		if first, dup := seen[key]; dup {
			result.AddError(fmt.Sprintf("selections %d and %d are duplicates (%s %s %s)",
				first, i+1, sel.MatchID, sel.PredictionType, sel.PredictionValue))
		} else {
			seen[key] = i + 1
		}
	}

	if v.logger != nil {
		v.logger.WithFields(logrus.Fields{
			"is_valid": result.IsValid,
			"errors":   len(result.Errors),
			"warnings": len(result.Warnings),
		}).Debug("Validated candidate tip")
	}

	return result
}

func (v *TipValidator) checkTotalOdds(candidate *models.CandidateTip, result *models.ValidationResult) {
	if candidate.TotalOdds == nil {
		return
	}
	total := *candidate.TotalOdds
	if total < 1.0 {
		result.AddError(fmt.Sprintf("total odds %.2f must be at least 1.0", total))
		return
	}
	if total > v.cfg.TotalOddsWarnAbove {
		result.AddWarning(fmt.Sprintf("total odds %.2f is implausibly high", total))
	}

	product := 1.0
	haveOdds := false
	for _, sel := range candidate.Selections {
		if sel.Odds > 0 {
			product *= sel.Odds
			haveOdds = true
		}
	}
	if haveOdds && math.Abs(product-total) > v.cfg.TotalOddsTolerance {
		result.AddWarning(fmt.Sprintf("declared total odds %.2f differs from selection product %.2f", total, product))
	}
}

func (v *TipValidator) checkSelection(ctx context.Context, idx int, sel models.CandidateSelection, batchSet map[string]struct{}, result *models.ValidationResult) {
	if sel.MatchID == "" {
		result.AddError(fmt.Sprintf("selection %d: matchId is required", idx))
	} else if _, ok := batchSet[sel.MatchID]; !ok {
		result.AddError(fmt.Sprintf("selection %d: matchId %s is not part of this batch", idx, sel.MatchID))
	} else {
		match, err := v.matches.GetMatchByID(ctx, sel.MatchID)
		switch {
		case err != nil:
			result.AddError(fmt.Sprintf("selection %d: failed to verify match %s: %v", idx, sel.MatchID, err))
		case match == nil:
			result.AddError(fmt.Sprintf("selection %d: match %s not found", idx, sel.MatchID))
		case match.Status != models.MatchStatusScheduled:
			result.AddError(fmt.Sprintf("selection %d: match %s is %s, not scheduled", idx, sel.MatchID, match.Status))
		}
	}

	if sel.PredictionType == "" {
		result.AddError(fmt.Sprintf("selection %d: predictionType is required", idx))
	} else if !models.IsKnownPredictionType(sel.PredictionType) {
		result.AddError(fmt.Sprintf("selection %d: unknown predictionType %q", idx, sel.PredictionType))
	}

	if sel.PredictionValue == "" {
		result.AddError(fmt.Sprintf("selection %d: predictionValue is required", idx))
	} else if utf8.RuneCountInString(sel.PredictionValue) > v.cfg.ValueMaxLen {
		result.AddError(fmt.Sprintf("selection %d: predictionValue exceeds %d characters", idx, v.cfg.ValueMaxLen))
	} else if sel.PredictionType != "" && models.IsKnownPredictionType(sel.PredictionType) {
		if !ValidPredictionValue(sel.PredictionType, sel.PredictionValue) {
			result.AddError(fmt.Sprintf("selection %d: predictionValue %q does not match %s grammar",
				idx, sel.PredictionValue, strings.ToLower(sel.PredictionType)))
		}
	}

	if sel.Odds == 0 {
		result.AddError(fmt.Sprintf("selection %d: odds are required", idx))
	} else if sel.Odds < 1.0 {
		result.AddError(fmt.Sprintf("selection %d: odds %.2f must be at least 1.0", idx, sel.Odds))
	} else if sel.Odds > v.cfg.OddsWarnAbove {
		result.AddWarning(fmt.Sprintf("selection %d: odds %.2f is implausibly high", idx, sel.Odds))
	}

	if sel.Confidence == nil {
		result.AddWarning(fmt.Sprintf("selection %d: confidence is missing", idx))
	} else if *sel.Confidence < 0 || *sel.Confidence > 100 {
		result.AddError(fmt.Sprintf("selection %d: confidence %.1f is outside [0,100]", idx, *sel.Confidence))
	}

	if sel.Reasoning == "" {
		result.AddWarning(fmt.Sprintf("selection %d: reasoning is missing", idx))
	} else if utf8.RuneCountInString(sel.Reasoning) > v.cfg.ReasoningMaxLen {
		result.AddWarning(fmt.Sprintf("selection %d: reasoning exceeds %d characters", idx, v.cfg.ReasoningMaxLen))
	}
}

// Prediction-value grammars, matched case-insensitively.
var (
	matchResultPattern  = regexp.MustCompile(`^(home_win|away_win|draw)$`)
	overUnderPattern    = regexp.MustCompile(`^(over|under)_\d+(\.\d)?$`)
	bttsPattern         = regexp.MustCompile(`^(yes|no)$`)
	doubleChancePattern = regexp.MustCompile(`^(home_draw|home_away|away_draw)$`)
	handicapPattern     = regexp.MustCompile(`^(home|away)_[+-]?\d+\.\d$`)
	correctScorePattern = regexp.MustCompile(`^\d+-\d+$`)
)

// ValidPredictionValue reports whether value matches the grammar for its
// declared prediction type. Unlisted types accept free text.
func ValidPredictionValue(predictionType, value string) bool {
	value = strings.ToLower(value)
	switch strings.ToLower(predictionType) {
	case models.PredictionMatchResult:
		return matchResultPattern.MatchString(value)
	case models.PredictionOverUnder:
		return overUnderPattern.MatchString(value)
	case models.PredictionBTTS:
		return bttsPattern.MatchString(value)
	case models.PredictionDoubleChance:
		return doubleChancePattern.MatchString(value)
	case models.PredictionHandicap:
		return handicapPattern.MatchString(value)
	case models.PredictionCorrectScore:
		return correctScorePattern.MatchString(value)
	default:
		// first_goal_scorer and any other recognized type accept free text.
		return true
	}
}

// extractFirstJSONObject scans for the first balanced top-level JSON object,
// respecting string literals and escapes.
func extractFirstJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
