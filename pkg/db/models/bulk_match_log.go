package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// BulkMatchLog records what the bulk matcher did with one report file.
type BulkMatchLog struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FileName             string             `gorm:"column:file_name;type:text;not null" json:"file_name"`
	NormalizedName       string             `gorm:"column:normalized_name;type:text;not null" json:"normalized_name"`
	Outcome              enums.MatchOutcome `gorm:"column:outcome;type:text;not null" json:"outcome"`
	Reason               *string            `gorm:"column:reason;type:text" json:"reason"`
	DocumentID           *uuid.UUID         `gorm:"column:document_id;type:uuid" json:"document_id"`
	SimilarityPercentage *float64           `gorm:"column:similarity_percentage" json:"similarity_percentage"`
	ActorID              *uuid.UUID         `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (b *BulkMatchLog) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
