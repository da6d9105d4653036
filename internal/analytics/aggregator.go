package analytics

import (
	"sort"
	"time"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

// Registry is the read-side slice of the pointer registry the aggregator
// consumes. All views are pull-only; nothing here mutates.
type Registry interface {
	All() []*types.ContentPointer
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type Summary struct {
	Total             int                            `json:"total"`
	ByStatus          map[types.ValidationStatus]int `json:"by_status"`
	ByRelationship    map[types.RelationshipType]int `json:"by_relationship"`
	AverageConfidence float64                        `json:"average_confidence"`
	TopDomains        []DomainCount                  `json:"top_domains"`
}

type Aggregator struct {
	log      *logger.Logger
	registry Registry
}

func NewAggregator(registry Registry, baseLog *logger.Logger) *Aggregator {
	return &Aggregator{
		log:      baseLog.With("service", "AnalyticsAggregator"),
		registry: registry,
	}
}

// GetBrokenPointers lists every pointer currently marked broken.
func (a *Aggregator) GetBrokenPointers() []*types.ContentPointer {
	var out []*types.ContentPointer
	for _, p := range a.registry.All() {
		if p.ValidationStatus == types.ValidationBroken {
			out = append(out, p)
		}
	}
	sortStable(out)
	return out
}

// GetDuplicatePointers groups pointers sharing a target id, returning only
// groups with more than one member.
func (a *Aggregator) GetDuplicatePointers() [][]*types.ContentPointer {
	byTarget := make(map[string][]*types.ContentPointer)
	for _, p := range a.registry.All() {
		byTarget[p.TargetID] = append(byTarget[p.TargetID], p)
	}

	targets := make([]string, 0, len(byTarget))
	for target, group := range byTarget {
		if len(group) > 1 {
			targets = append(targets, target)
		}
	}
	sort.Strings(targets)

	out := make([][]*types.ContentPointer, 0, len(targets))
	for _, target := range targets {
		group := byTarget[target]
		sortStable(group)
		out = append(out, group)
	}
	return out
}

// GetPointerAnalytics returns counts by status, the relationship-type
// histogram, average confidence, and the most-referenced domains.
func (a *Aggregator) GetPointerAnalytics() Summary {
	summary := Summary{
		ByStatus:       make(map[types.ValidationStatus]int),
		ByRelationship: make(map[types.RelationshipType]int),
	}

	domainCounts := make(map[string]int)
	var confidenceSum float64

	pointers := a.registry.All()
	summary.Total = len(pointers)
	for _, p := range pointers {
		summary.ByStatus[p.ValidationStatus]++
		summary.ByRelationship[p.RelationshipType]++
		confidenceSum += p.ConfidenceScore
		if domain := p.Metadata.Data().Domain; domain != "" {
			domainCounts[domain]++
		}
	}
	if summary.Total > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.Total)
	}

	for domain, count := range domainCounts {
		summary.TopDomains = append(summary.TopDomains, DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(summary.TopDomains, func(i, j int) bool {
		if summary.TopDomains[i].Count != summary.TopDomains[j].Count {
			return summary.TopDomains[i].Count > summary.TopDomains[j].Count
		}
		return summary.TopDomains[i].Domain < summary.TopDomains[j].Domain
	})
	if len(summary.TopDomains) > 10 {
		summary.TopDomains = summary.TopDomains[:10]
	}
	return summary
}

// TopPointers ranks pointers by access count, most used first.
func (a *Aggregator) TopPointers(limit int) []*types.ContentPointer {
	if limit <= 0 {
		limit = 10
	}
	pointers := a.registry.All()
	sort.Slice(pointers, func(i, j int) bool {
		if pointers[i].AccessCount != pointers[j].AccessCount {
			return pointers[i].AccessCount > pointers[j].AccessCount
		}
		return pointers[i].ID.String() < pointers[j].ID.String()
	})
	if len(pointers) > limit {
		pointers = pointers[:limit]
	}
	return pointers
}

// GetStalePointers returns pointers not validated since the cutoff, including
// those never validated at all.
func (a *Aggregator) GetStalePointers(maxAge time.Duration, now time.Time) []*types.ContentPointer {
	cutoff := now.Add(-maxAge)
	var out []*types.ContentPointer
	for _, p := range a.registry.All() {
		if p.LastValidated == nil || p.LastValidated.Before(cutoff) {
			out = append(out, p)
		}
	}
	sortStable(out)
	return out
}

func sortStable(pointers []*types.ContentPointer) {
	sort.Slice(pointers, func(i, j int) bool {
		if !pointers[i].CreatedAt.Equal(pointers[j].CreatedAt) {
			return pointers[i].CreatedAt.Before(pointers[j].CreatedAt)
		}
		return pointers[i].ID.String() < pointers[j].ID.String()
	})
}
