package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/matchpulse/tips-service/internal/models"
)

// MatchRepository provides read access to matches and their related
// statistics records. Every statistics lookup is optional: a missing row
// yields (nil, nil), never an error, because the pipeline must tolerate
// absent data at every stage.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// GetMatchByID returns the match or (nil, nil) when it does not exist.
func (r *MatchRepository) GetMatchByID(ctx context.Context, matchID string) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).First(&match, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	return &match, nil
}

// ListMatchesByIDs returns the matches that exist among the given ids.
func (r *MatchRepository) ListMatchesByIDs(ctx context.Context, matchIDs []string) ([]models.Match, error) {
	var matches []models.Match
	if len(matchIDs) == 0 {
		return matches, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", matchIDs).Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	return matches, nil
}

// GetTeamStatistics returns the aggregate row for one team in one league.
func (r *MatchRepository) GetTeamStatistics(ctx context.Context, teamID, leagueID string) (*models.TeamStatistics, error) {
	var stats models.TeamStatistics
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND league_id = ?", teamID, leagueID).
		First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team statistics for %s: %w", teamID, err)
	}
	return &stats, nil
}

// GetHeadToHead returns the head-to-head record for a team pairing.
func (r *MatchRepository) GetHeadToHead(ctx context.Context, homeTeamID, awayTeamID string) (*models.HeadToHead, error) {
	var h2h models.HeadToHead
	err := r.db.WithContext(ctx).
		Where("home_team_id = ? AND away_team_id = ?", homeTeamID, awayTeamID).
		First(&h2h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load head-to-head %s vs %s: %w", homeTeamID, awayTeamID, err)
	}
	return &h2h, nil
}

// GetImportanceRating returns the importance rating for one team in one league.
func (r *MatchRepository) GetImportanceRating(ctx context.Context, teamID, leagueID string) (*models.ImportanceRating, error) {
	var rating models.ImportanceRating
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND league_id = ?", teamID, leagueID).
		First(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load importance rating for %s: %w", teamID, err)
	}
	return &rating, nil
}

// GetPredictabilityScore returns the predictability score for a match.
func (r *MatchRepository) GetPredictabilityScore(ctx context.Context, matchID string) (*models.PredictabilityScore, error) {
	var score models.PredictabilityScore
	err := r.db.WithContext(ctx).Where("match_id = ?", matchID).First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load predictability score for %s: %w", matchID, err)
	}
	return &score, nil
}

// GetMaturityScore returns the data-maturity score for a match.
func (r *MatchRepository) GetMaturityScore(ctx context.Context, matchID string) (*models.MaturityScore, error) {
	var score models.MaturityScore
	err := r.db.WithContext(ctx).Where("match_id = ?", matchID).First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load maturity score for %s: %w", matchID, err)
	}
	return &score, nil
}
