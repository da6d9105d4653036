package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PointerType string

const (
	PointerTypeSlug     PointerType = "slug"
	PointerTypeURL      PointerType = "url"
	PointerTypeID       PointerType = "id"
	PointerTypeAPI      PointerType = "api"
	PointerTypeFile     PointerType = "file"
	PointerTypeDynamic  PointerType = "dynamic"
	PointerTypeExternal PointerType = "external"
)

type RelationshipType string

const (
	RelationshipRelated      RelationshipType = "related"
	RelationshipPrerequisite RelationshipType = "prerequisite"
	RelationshipFollowUp     RelationshipType = "follow_up"
	RelationshipAlternative  RelationshipType = "alternative"
	RelationshipComplement   RelationshipType = "complement"
	RelationshipUpgrade      RelationshipType = "upgrade"
	RelationshipEmbedded     RelationshipType = "embedded"
)

type ValidationStatus string

const (
	ValidationPending    ValidationStatus = "pending"
	ValidationValid      ValidationStatus = "valid"
	ValidationBroken     ValidationStatus = "broken"
	ValidationExpired    ValidationStatus = "expired"
	ValidationRedirected ValidationStatus = "redirected"
)

// PointerMetadata is the free-form context attached to a pointer. Domain is
// what the security filter gates on; LastValidationDetail preserves the
// fine-grained validator outcome (forbidden, not_found) that the persisted
// status enum collapses to broken.
type PointerMetadata struct {
	Domain               string            `json:"domain,omitempty"`
	ContentType          string            `json:"content_type,omitempty"`
	Language             string            `json:"language,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	TrustScore           float64           `json:"trust_score,omitempty"`
	LastValidationDetail string            `json:"last_validation_detail,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// FallbackContent is the static substitute served when a live fetch fails.
type FallbackContent struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Markup      string `json:"markup,omitempty"`
}

// PointerAnalytics counters are updated by external callers, never by the
// engine itself.
type PointerAnalytics struct {
	Clicks       int64   `json:"clicks"`
	Conversions  int64   `json:"conversions"`
	BounceRate   float64 `json:"bounce_rate"`
	AvgDwellTime float64 `json:"avg_dwell_time"`
}

type ContentPointer struct {
	ID               uuid.UUID                              `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID         string                                 `gorm:"not null;index" json:"source_id"`
	TargetID         string                                 `gorm:"not null;index" json:"target_id"`
	PointerType      PointerType                            `gorm:"not null" json:"pointer_type"`
	RelationshipType RelationshipType                       `gorm:"not null;default:'related'" json:"relationship_type"`
	ValidationStatus ValidationStatus                       `gorm:"not null;default:'pending';index" json:"validation_status"`
	ConfidenceScore  float64                                `gorm:"not null;default:0.5" json:"confidence_score"`
	Priority         int                                    `gorm:"not null;default:0" json:"priority"`
	TTLSeconds       *int                                   `gorm:"column:ttl_seconds" json:"ttl_seconds,omitempty"`
	AccessCount      int64                                  `gorm:"not null;default:0" json:"access_count"`
	LastAccessed     *time.Time                             `json:"last_accessed,omitempty"`
	LastValidated    *time.Time                             `json:"last_validated,omitempty"`
	Metadata         datatypes.JSONType[PointerMetadata]    `gorm:"type:jsonb" json:"metadata"`
	Fallback         datatypes.JSONType[*FallbackContent]   `gorm:"type:jsonb" json:"fallback,omitempty"`
	Analytics        datatypes.JSONType[PointerAnalytics]   `gorm:"type:jsonb" json:"analytics"`
	CreatedAt        time.Time                              `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                              `gorm:"not null" json:"updated_at"`
}

func (ContentPointer) TableName() string { return "content_pointer" }

// TTLOrDefault returns the pointer's cache TTL, falling back to def when unset
// or non-positive. The TTL affects caching only, never validation cadence.
func (p *ContentPointer) TTLOrDefault(def time.Duration) time.Duration {
	if p.TTLSeconds != nil && *p.TTLSeconds > 0 {
		return time.Duration(*p.TTLSeconds) * time.Second
	}
	return def
}

// Clone returns a shallow copy safe to hand to callers without exposing the
// registry's indexed instance to mutation.
func (p *ContentPointer) Clone() *ContentPointer {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func ValidPointerType(t PointerType) bool {
	switch t {
	case PointerTypeSlug, PointerTypeURL, PointerTypeID, PointerTypeAPI,
		PointerTypeFile, PointerTypeDynamic, PointerTypeExternal:
		return true
	}
	return false
}

func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelationshipRelated, RelationshipPrerequisite, RelationshipFollowUp,
		RelationshipAlternative, RelationshipComplement, RelationshipUpgrade,
		RelationshipEmbedded:
		return true
	}
	return false
}
