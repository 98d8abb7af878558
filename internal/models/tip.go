package models

import (
	"time"
)

// AITipsterName is the singleton tipster record owning generated tips.
const AITipsterName = "AI Tipster"

// Tipster owns published tips. The AI tipster is fetched-or-created lazily
// inside the same transaction that writes a tip.
type Tipster struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"size:255"`
	IsAI        bool      `json:"is_ai" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// Tip is the persisted, user-facing betting recommendation. It is created
// once per successful generation call and never mutated by this pipeline
// afterwards.
type Tip struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	TipsterID   uint    `json:"tipster_id" gorm:"not null;index"`
	Title       string  `json:"title" gorm:"size:255;not null"`
	Description string  `json:"description" gorm:"type:text"`
	TotalOdds   float64 `json:"total_odds"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning" gorm:"type:text"`

	// AI provenance
	ModelVersion      string  `json:"model_version" gorm:"size:100"`
	PromptVersion     string  `json:"prompt_version" gorm:"size:20"`
	DataMaturityScore float64 `json:"data_maturity_score"`
	GenerationBatchID string  `json:"generation_batch_id" gorm:"size:100;index"`
	IsPublished       bool    `json:"is_published" gorm:"default:false"`

	Selections []TipSelection `json:"selections" gorm:"foreignKey:TipID"`
	CreatedAt  time.Time      `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TipSelection is one discrete prediction within a tip, referencing one
// input match. Immutable after creation.
type TipSelection struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TipID           uint      `json:"tip_id" gorm:"not null;index"`
	MatchID         string    `json:"match_id" gorm:"size:64;not null;index"`
	PredictionType  string    `json:"prediction_type" gorm:"size:50;not null"`
	PredictionValue string    `json:"prediction_value" gorm:"size:100;not null"`
	Odds            float64   `json:"odds" gorm:"not null"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning" gorm:"type:text"`
	Position        int       `json:"position" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}
