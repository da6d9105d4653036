package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
	"github.com/marketloom/pointer-engine/internal/repos"
	"github.com/marketloom/pointer-engine/internal/types"
)

const (
	defaultMinConfidence  = 0.3
	defaultMaxSuggestions = 10

	// Patterns whose suggestions keep getting rejected are dampened, not
	// removed; a later streak of acceptances restores them.
	lowSuccessFloor      = 0.2
	lowSuccessMultiplier = 0.5
)

// Scorer is the pluggable external relevance scorer. Returning an error skips
// the candidate without failing detection.
type Scorer interface {
	Score(ctx context.Context, source, candidate *types.ContentNode) (float64, string, error)
}

type Options struct {
	MaxSuggestions int
	MinConfidence  float64
	UseScorer      bool
}

// Detector proposes pointers between content nodes. It is side-effect-free
// with respect to the registry: suggestions are returned, never written.
type Detector struct {
	log           *logger.Logger
	nodes         repos.ContentNodeRepo
	patterns      repos.PatternRepo
	scorer        Scorer
	metrics       *observability.Metrics
	minConfidence float64

	mu     sync.Mutex
	loaded []*types.RelationshipPattern
}

func NewDetector(nodes repos.ContentNodeRepo, patterns repos.PatternRepo, scorer Scorer,
	metrics *observability.Metrics, baseLog *logger.Logger) *Detector {
	return &Detector{
		log:           baseLog.With("service", "RelationshipDetector"),
		nodes:         nodes,
		patterns:      patterns,
		scorer:        scorer,
		metrics:       metrics,
		minConfidence: defaultMinConfidence,
	}
}

// SetDefaultMinConfidence overrides the floor applied when Options leaves
// MinConfidence unset.
func (d *Detector) SetDefaultMinConfidence(v float64) {
	if v > 0 {
		d.minConfidence = v
	}
}

// SeedPatterns upserts rule definitions (usually from a YAML file) and
// refreshes the in-memory pattern set.
func (d *Detector) SeedPatterns(ctx context.Context, patterns []*types.RelationshipPattern) error {
	existing, err := d.patterns.GetAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("load existing patterns: %w", err)
	}
	byName := make(map[string]*types.RelationshipPattern, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	for _, p := range patterns {
		if prev, ok := byName[p.Name]; ok {
			p.ID = prev.ID
			p.UsageCount = prev.UsageCount
			p.SuccessRate = prev.SuccessRate
		}
		if _, err := d.patterns.Upsert(ctx, nil, p); err != nil {
			return fmt.Errorf("upsert pattern %q: %w", p.Name, err)
		}
	}
	return d.Reload(ctx)
}

// Reload re-reads the pattern set from the store.
func (d *Detector) Reload(ctx context.Context) error {
	all, err := d.patterns.GetAll(ctx, nil)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.loaded = all
	d.mu.Unlock()
	return nil
}

// Detect combines pattern-based and similarity-based candidates, filters by
// confidence, and returns the top suggestions in descending confidence order.
func (d *Detector) Detect(ctx context.Context, sourceID string, opts Options) ([]types.Suggestion, error) {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = d.minConfidence
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = defaultMaxSuggestions
	}

	stop := d.metrics.StartTimer("detect_relationships")
	defer stop()

	source, err := d.nodes.GetByID(ctx, nil, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load source node: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("no content node %q", sourceID)
	}

	candidates, err := d.nodes.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load candidate nodes: %w", err)
	}

	best := make(map[string]types.Suggestion)
	fired := make(map[uuid.UUID]*types.RelationshipPattern)

	d.mu.Lock()
	patterns := d.loaded
	d.mu.Unlock()

	for _, candidate := range candidates {
		if candidate.ID == source.ID {
			continue
		}

		for _, pattern := range patterns {
			confidence, reasoning := d.scorePattern(pattern, source, candidate)
			if confidence <= 0 {
				continue
			}
			fired[pattern.ID] = pattern
			keepBest(best, types.Suggestion{
				TargetID:         candidate.ID,
				RelationshipType: pattern.RelationshipType,
				Confidence:       confidence,
				Reasoning:        reasoning,
				PatternID:        &pattern.ID,
			})
		}

		if sim := cosine(source.Embedding, candidate.Embedding); sim > 0 {
			keepBest(best, types.Suggestion{
				TargetID:         candidate.ID,
				RelationshipType: types.RelationshipRelated,
				Confidence:       sim,
				Reasoning:        fmt.Sprintf("embedding similarity %.2f", sim),
			})
		}

		if opts.UseScorer && d.scorer != nil {
			score, reasoning, serr := d.scorer.Score(ctx, source, candidate)
			if serr != nil {
				d.log.Warn("External scorer failed", "candidate", candidate.ID, "error", serr)
			} else if score > 0 {
				keepBest(best, types.Suggestion{
					TargetID:         candidate.ID,
					RelationshipType: types.RelationshipRelated,
					Confidence:       clamp01(score),
					Reasoning:        reasoning,
				})
			}
		}
	}

	d.recordUsage(ctx, fired)

	out := make([]types.Suggestion, 0, len(best))
	for _, s := range best {
		if s.Confidence >= opts.MinConfidence {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].TargetID < out[j].TargetID
	})
	if len(out) > opts.MaxSuggestions {
		out = out[:opts.MaxSuggestions]
	}

	d.metrics.Add("suggestions_returned", int64(len(out)))
	return out, nil
}

// RecordOutcome feeds back whether a pattern's suggestion was accepted. The
// success rate is an exponential moving average so old history fades.
func (d *Detector) RecordOutcome(ctx context.Context, patternID uuid.UUID, accepted bool) error {
	d.mu.Lock()
	var target *types.RelationshipPattern
	for _, p := range d.loaded {
		if p.ID == patternID {
			target = p
			break
		}
	}
	if target == nil {
		d.mu.Unlock()
		return fmt.Errorf("unknown pattern %s", patternID)
	}
	observed := 0.0
	if accepted {
		observed = 1.0
	}
	target.SuccessRate = 0.9*target.SuccessRate + 0.1*observed
	usage := target.UsageCount
	rate := target.SuccessRate
	d.mu.Unlock()

	return d.patterns.UpdateStats(ctx, nil, patternID, usage, rate)
}

func (d *Detector) scorePattern(pattern *types.RelationshipPattern, source, candidate *types.ContentNode) (float64, string) {
	conditions := pattern.Conditions.Data()
	if len(conditions) == 0 {
		return 0, ""
	}

	var matched, total float64
	for _, c := range conditions {
		total += c.Weight
		if conditionMatches(c, source, candidate) {
			matched += c.Weight
		}
	}
	if matched == 0 {
		return 0, ""
	}

	confidence := pattern.BaseConfidence * (matched / total)
	if pattern.SuccessRate < lowSuccessFloor {
		confidence *= lowSuccessMultiplier
	}
	reasoning := fmt.Sprintf("pattern %q matched %.0f%% of conditions", pattern.Name, 100*matched/total)
	return clamp01(confidence), reasoning
}

func (d *Detector) recordUsage(ctx context.Context, fired map[uuid.UUID]*types.RelationshipPattern) {
	for id, pattern := range fired {
		d.mu.Lock()
		pattern.UsageCount++
		usage := pattern.UsageCount
		rate := pattern.SuccessRate
		d.mu.Unlock()
		if err := d.patterns.UpdateStats(ctx, nil, id, usage, rate); err != nil {
			d.log.Warn("Failed to persist pattern usage", "pattern_id", id, "error", err)
		}
	}
}

func keepBest(best map[string]types.Suggestion, s types.Suggestion) {
	if current, ok := best[s.TargetID]; ok && current.Confidence >= s.Confidence {
		return
	}
	best[s.TargetID] = s
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	return clamp01(sim)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
