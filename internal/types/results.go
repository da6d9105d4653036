package types

import (
	"time"

	"github.com/google/uuid"
)

// FetchResult is the typed outcome of a content fetch. Fetch never panics or
// returns a bare error past the fetcher boundary; every failure path lands
// here with Success=false.
type FetchResult struct {
	Success      bool          `json:"success"`
	PointerID    uuid.UUID     `json:"pointer_id"`
	PointerType  PointerType   `json:"pointer_type,omitempty"`
	Content      string        `json:"content,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	Size         int           `json:"size"`
	Cached       bool          `json:"cached"`
	FromFallback bool          `json:"from_fallback"`
	FetchTime    time.Duration `json:"fetch_time"`
	Error        string        `json:"error,omitempty"`
}

// ValidationDetail preserves validator outcomes finer than the persisted
// status enum. forbidden and not_found both persist as broken.
type ValidationDetail string

const (
	DetailOK        ValidationDetail = "ok"
	DetailForbidden ValidationDetail = "forbidden"
	DetailNotFound  ValidationDetail = "not_found"
	DetailTimeout   ValidationDetail = "timeout"
	DetailError     ValidationDetail = "error"
)

// ValidationResult is what a type-specific validator reports for one pointer.
type ValidationResult struct {
	PointerID     uuid.UUID        `json:"pointer_id"`
	Status        ValidationStatus `json:"status"`
	Detail        ValidationDetail `json:"detail"`
	ResponseCode  int              `json:"response_code,omitempty"`
	ContentType   string           `json:"content_type,omitempty"`
	ContentLength int64            `json:"content_length,omitempty"`
	ResponseTime  time.Duration    `json:"response_time"`
	Errors        []string         `json:"errors,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	CheckedAt     time.Time        `json:"checked_at"`
}

// Suggestion is a proposed pointer from the relationship detector. The
// detector never creates pointers; acting on a suggestion is the caller's
// explicit choice.
type Suggestion struct {
	TargetID         string           `json:"target_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       float64          `json:"confidence"`
	Reasoning        string           `json:"reasoning"`
	PatternID        *uuid.UUID       `json:"pattern_id,omitempty"`
}
