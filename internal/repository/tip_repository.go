package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/matchpulse/tips-service/internal/models"
)

// TipRepository owns the transactional write of a tip graph and read access
// to persisted tips.
type TipRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTipRepository(db *gorm.DB, logger *logrus.Logger) *TipRepository {
	return &TipRepository{db: db, logger: logger}
}

// CreateTipGraph persists one tip and its selections atomically. The AI
// tipster record is fetched-or-created inside the same transaction, and every
// selection's match is re-verified to exist in a schedulable state before
// the write commits. Any failure rolls back the whole graph; no partial
// Tip/TipSelection rows remain.
func (r *TipRepository) CreateTipGraph(ctx context.Context, tip *models.Tip, selections []models.TipSelection) (*models.Tip, error) {
	if len(selections) == 0 {
		return nil, fmt.Errorf("refusing to persist tip without selections")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tipster models.Tipster
		if err := tx.Where(models.Tipster{Name: models.AITipsterName}).
			Attrs(models.Tipster{DisplayName: models.AITipsterName, IsAI: true}).
			FirstOrCreate(&tipster).Error; err != nil {
			return fmt.Errorf("failed to resolve AI tipster: %w", err)
		}
		tip.TipsterID = tipster.ID

		if err := tx.Create(tip).Error; err != nil {
			return fmt.Errorf("failed to create tip: %w", err)
		}

		for i := range selections {
			var count int64
			if err := tx.Model(&models.Match{}).
				Where("id = ? AND status = ?", selections[i].MatchID, models.MatchStatusScheduled).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to verify match %s: %w", selections[i].MatchID, err)
			}
			if count == 0 {
				return fmt.Errorf("selection %d references match %s which is not schedulable", i+1, selections[i].MatchID)
			}

			selections[i].TipID = tip.ID
			selections[i].Position = i + 1
			if err := tx.Create(&selections[i]).Error; err != nil {
				return fmt.Errorf("failed to create selection %d: %w", i+1, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	tip.Selections = selections

	r.logger.WithFields(logrus.Fields{
		"tip_id":     tip.ID,
		"batch_id":   tip.GenerationBatchID,
		"selections": len(selections),
	}).Info("Persisted tip graph")

	return tip, nil
}

// RecentTips returns the latest persisted tips with their selections.
func (r *TipRepository) RecentTips(ctx context.Context, limit int) ([]models.Tip, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var tips []models.Tip
	err := r.db.WithContext(ctx).
		Preload("Selections").
		Order("created_at DESC").
		Limit(limit).
		Find(&tips).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tips: %w", err)
	}
	return tips, nil
}

// TipsByBatch returns tips created for one generation batch.
func (r *TipRepository) TipsByBatch(ctx context.Context, batchID string) ([]models.Tip, error) {
	var tips []models.Tip
	err := r.db.WithContext(ctx).
		Preload("Selections").
		Where("generation_batch_id = ?", batchID).
		Order("created_at DESC").
		Find(&tips).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tips for batch %s: %w", batchID, err)
	}
	return tips, nil
}
