package models

import (
	"time"

	"gorm.io/datatypes"
)

// Match status values as delivered by the upstream sports-data provider.
const (
	MatchStatusScheduled = "scheduled"
	MatchStatusLive      = "live"
	MatchStatusFinished  = "finished"
	MatchStatusPostponed = "postponed"
	MatchStatusCancelled = "cancelled"
)

// Match represents an upcoming fixture synced from the sports-data provider.
// This pipeline treats matches as read-only input.
type Match struct {
	ID          string         `json:"id" gorm:"primaryKey;size:64"`
	HomeTeamID  string         `json:"home_team_id" gorm:"size:64;not null"`
	AwayTeamID  string         `json:"away_team_id" gorm:"size:64;not null"`
	HomeTeam    string         `json:"home_team" gorm:"size:255;not null"`
	AwayTeam    string         `json:"away_team" gorm:"size:255;not null"`
	LeagueID    string         `json:"league_id" gorm:"size:64;not null"`
	LeagueName  string         `json:"league_name" gorm:"size:255"`
	KickoffTime time.Time      `json:"kickoff_time" gorm:"not null"`
	Venue       string         `json:"venue" gorm:"size:255"`
	Round       string         `json:"round" gorm:"size:100"`
	Season      string         `json:"season" gorm:"size:50"`
	Status      string         `json:"status" gorm:"size:30;default:'scheduled';index"`
	OddsData    datatypes.JSON `json:"odds_data" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TeamStatistics holds per-team aggregates for one league season.
type TeamStatistics struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	TeamID        string  `json:"team_id" gorm:"size:64;not null;index:idx_team_league"`
	LeagueID      string  `json:"league_id" gorm:"size:64;not null;index:idx_team_league"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	Draws         int     `json:"draws"`
	Losses        int     `json:"losses"`
	GoalsScored   int     `json:"goals_scored"`
	GoalsConceded int     `json:"goals_conceded"`
	AvgScored     float64 `json:"avg_scored"`
	AvgConceded   float64 `json:"avg_conceded"`
	// RecentForm is the last matches oldest-to-newest, e.g. "WWDLW".
	RecentForm string    `json:"recent_form" gorm:"size:20"`
	HomeWins   int       `json:"home_wins"`
	HomeDraws  int       `json:"home_draws"`
	HomeLosses int       `json:"home_losses"`
	AwayWins   int       `json:"away_wins"`
	AwayDraws  int       `json:"away_draws"`
	AwayLosses int       `json:"away_losses"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// HeadToHead summarizes previous meetings between two teams.
type HeadToHead struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	HomeTeamID    string  `json:"home_team_id" gorm:"size:64;not null;index:idx_h2h_pair"`
	AwayTeamID    string  `json:"away_team_id" gorm:"size:64;not null;index:idx_h2h_pair"`
	TotalMatches  int     `json:"total_matches"`
	HomeWins      int     `json:"home_wins"`
	Draws         int     `json:"draws"`
	AwayWins      int     `json:"away_wins"`
	AvgTotalGoals float64 `json:"avg_total_goals"`
	// RecentResults is a short human-readable list of the latest meetings,
	// e.g. "2-1, 0-0, 1-3".
	RecentResults string    `json:"recent_results" gorm:"size:255"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// ImportanceRating scores how much a match matters for one team (0-100).
type ImportanceRating struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TeamID    string    `json:"team_id" gorm:"size:64;not null;index"`
	LeagueID  string    `json:"league_id" gorm:"size:64;not null"`
	Score     float64   `json:"score"`
	Factors   string    `json:"factors" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// PredictabilityScore measures how statistically regular a match's league
// pairing has been (0-100).
type PredictabilityScore struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MatchID   string    `json:"match_id" gorm:"size:64;not null;uniqueIndex"`
	Score     float64   `json:"score"`
	Factors   string    `json:"factors" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// MaturityScore measures how much reliable historical data exists for a
// match (0-100). It drives context inclusion and system-prompt choice.
type MaturityScore struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MatchID   string    `json:"match_id" gorm:"size:64;not null;uniqueIndex"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}
