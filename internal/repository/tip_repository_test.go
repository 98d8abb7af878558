package repository_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/matchpulse/tips-service/internal/models"
	"github.com/matchpulse/tips-service/internal/repository"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Match{},
		&models.Tipster{},
		&models.Tip{},
		&models.TipSelection{},
	))
	return db
}

func seedMatch(t *testing.T, db *gorm.DB, id, status string) {
	t.Helper()
	match := models.Match{
		ID:          id,
		HomeTeamID:  "team-home",
		AwayTeamID:  "team-away",
		HomeTeam:    "Arsenal",
		AwayTeam:    "Chelsea",
		LeagueID:    "league-1",
		LeagueName:  "Premier League",
		KickoffTime: time.Now().Add(48 * time.Hour),
		Status:      status,
	}
	require.NoError(t, db.Create(&match).Error)
}

func sampleSelections(matchIDs ...string) []models.TipSelection {
	selections := make([]models.TipSelection, 0, len(matchIDs))
	for _, id := range matchIDs {
		selections = append(selections, models.TipSelection{
			MatchID:         id,
			PredictionType:  models.PredictionMatchResult,
			PredictionValue: "home_win",
			Odds:            1.85,
			Confidence:      70,
			Reasoning:       "strong home form",
		})
	}
	return selections
}

func TestCreateTipGraph_PersistsTipAndSelections(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewTipRepository(db, testLogger())

	seedMatch(t, db, "match-1", models.MatchStatusScheduled)
	seedMatch(t, db, "match-2", models.MatchStatusScheduled)

	tip := &models.Tip{
		Title:             "Weekend double",
		TotalOdds:         3.42,
		Confidence:        65,
		GenerationBatchID: "league-batch-1",
	}

	saved, err := repo.CreateTipGraph(context.Background(), tip, sampleSelections("match-1", "match-2"))
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	require.Len(t, saved.Selections, 2)
	assert.Equal(t, 1, saved.Selections[0].Position)
	assert.Equal(t, 2, saved.Selections[1].Position)
	assert.Equal(t, saved.ID, saved.Selections[0].TipID)

	var tipster models.Tipster
	require.NoError(t, db.Where("name = ?", models.AITipsterName).First(&tipster).Error)
	assert.True(t, tipster.IsAI)
	assert.Equal(t, tipster.ID, saved.TipsterID)

	// The second write reuses the AI tipster instead of duplicating it.
	second := &models.Tip{Title: "Midweek single", TotalOdds: 1.85, GenerationBatchID: "league-batch-2"}
	_, err = repo.CreateTipGraph(context.Background(), second, sampleSelections("match-1"))
	require.NoError(t, err)

	var tipsterCount int64
	require.NoError(t, db.Model(&models.Tipster{}).Count(&tipsterCount).Error)
	assert.Equal(t, int64(1), tipsterCount)
}

func TestCreateTipGraph_RollsBackWhenSelectionNotSchedulable(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewTipRepository(db, testLogger())

	seedMatch(t, db, "match-1", models.MatchStatusScheduled)
	seedMatch(t, db, "match-2", models.MatchStatusLive)

	tip := &models.Tip{Title: "Weekend double", TotalOdds: 3.42, GenerationBatchID: "league-batch-1"}

	_, err := repo.CreateTipGraph(context.Background(), tip, sampleSelections("match-1", "match-2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not schedulable")

	// The whole graph rolls back: no tip, no selections, no tipster row.
	var tips, selections, tipsters int64
	require.NoError(t, db.Model(&models.Tip{}).Count(&tips).Error)
	require.NoError(t, db.Model(&models.TipSelection{}).Count(&selections).Error)
	require.NoError(t, db.Model(&models.Tipster{}).Count(&tipsters).Error)
	assert.Zero(t, tips)
	assert.Zero(t, selections)
	assert.Zero(t, tipsters)
}

func TestCreateTipGraph_RollsBackWhenMatchMissing(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewTipRepository(db, testLogger())

	seedMatch(t, db, "match-1", models.MatchStatusScheduled)

	tip := &models.Tip{Title: "Weekend double", TotalOdds: 3.42, GenerationBatchID: "league-batch-1"}

	_, err := repo.CreateTipGraph(context.Background(), tip, sampleSelections("match-1", "ghost-match"))
	require.Error(t, err)

	var tips, selections int64
	require.NoError(t, db.Model(&models.Tip{}).Count(&tips).Error)
	require.NoError(t, db.Model(&models.TipSelection{}).Count(&selections).Error)
	assert.Zero(t, tips)
	assert.Zero(t, selections)
}

func TestCreateTipGraph_RejectsEmptySelections(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewTipRepository(db, testLogger())

	_, err := repo.CreateTipGraph(context.Background(), &models.Tip{Title: "Empty"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without selections")
}
