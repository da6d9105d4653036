package types

import (
	"time"

	"gorm.io/datatypes"
)

// ContentNode is the target-side content record referenced by pointers. The
// engine treats it as read-only input to relationship detection; ownership
// stays with the external content store.
type ContentNode struct {
	ID            string                       `gorm:"primaryKey" json:"id"`
	Slug          string                       `gorm:"uniqueIndex" json:"slug"`
	Title         string                       `json:"title"`
	ContentType   string                       `gorm:"index" json:"content_type"`
	Domain        string                       `gorm:"index" json:"domain"`
	Language      string                       `json:"language"`
	Tags          datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"tags"`
	QualityScore  float64                      `json:"quality_score"`
	SecurityScore float64                      `json:"security_score"`
	Embedding     datatypes.JSONSlice[float32] `gorm:"type:jsonb" json:"embedding,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

func (ContentNode) TableName() string { return "content_node" }
