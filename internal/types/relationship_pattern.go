package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PatternCondition is one weighted field predicate of a relationship rule.
// Field names address ContentNode fields (content_type, domain, language,
// tags, quality_score); Op is one of eq, neq, contains, gte, lte.
type PatternCondition struct {
	Field  string  `json:"field" yaml:"field"`
	Op     string  `json:"op" yaml:"op"`
	Value  string  `json:"value" yaml:"value"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// RelationshipPattern is a named rule proposing a relationship between two
// content nodes. UsageCount and SuccessRate track how often the pattern fires
// and how often its suggestions are accepted, so chronically unaccepted
// patterns sink in the ranking.
type RelationshipPattern struct {
	ID               uuid.UUID                              `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string                                 `gorm:"not null;uniqueIndex" json:"name"`
	RelationshipType RelationshipType                       `gorm:"not null" json:"relationship_type"`
	Conditions       datatypes.JSONType[[]PatternCondition] `gorm:"type:jsonb" json:"conditions"`
	BaseConfidence   float64                                `gorm:"not null;default:0.5" json:"base_confidence"`
	UsageCount       int64                                  `gorm:"not null;default:0" json:"usage_count"`
	SuccessRate      float64                                `gorm:"not null;default:0.5" json:"success_rate"`
	CreatedAt        time.Time                              `json:"created_at"`
	UpdatedAt        time.Time                              `json:"updated_at"`
}

func (RelationshipPattern) TableName() string { return "relationship_pattern" }
