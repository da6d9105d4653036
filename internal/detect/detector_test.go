package detect

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

type fakeNodeRepo struct {
	nodes map[string]*types.ContentNode
}

func (r *fakeNodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.ContentNode, error) {
	if n, ok := r.nodes[id]; ok {
		return n, nil
	}
	return nil, nil
}

func (r *fakeNodeRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.ContentNode, error) {
	for _, n := range r.nodes {
		if n.Slug == slug {
			return n, nil
		}
	}
	return nil, nil
}

func (r *fakeNodeRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentNode, error) {
	out := make([]*types.ContentNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (r *fakeNodeRepo) ExistsBySlug(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	n, err := r.GetBySlug(ctx, tx, slug)
	return n != nil, err
}

type fakePatternRepo struct {
	mu       sync.Mutex
	patterns map[uuid.UUID]*types.RelationshipPattern
	stats    map[uuid.UUID][2]float64
}

func newFakePatternRepo() *fakePatternRepo {
	return &fakePatternRepo{
		patterns: make(map[uuid.UUID]*types.RelationshipPattern),
		stats:    make(map[uuid.UUID][2]float64),
	}
}

func (r *fakePatternRepo) Upsert(ctx context.Context, tx *gorm.DB, p *types.RelationshipPattern) (*types.RelationshipPattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patterns[p.ID] = p
	return p, nil
}

func (r *fakePatternRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.RelationshipPattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.RelationshipPattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakePatternRepo) UpdateStats(ctx context.Context, tx *gorm.DB, id uuid.UUID, usageCount int64, successRate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[id] = [2]float64{float64(usageCount), successRate}
	return nil
}

type fixedScorer struct {
	score float64
}

func (s fixedScorer) Score(ctx context.Context, source, candidate *types.ContentNode) (float64, string, error) {
	return s.score, "external scorer", nil
}

func node(id, contentType, domain string, tags ...string) *types.ContentNode {
	return &types.ContentNode{
		ID:          id,
		Title:       id,
		ContentType: contentType,
		Domain:      domain,
		Tags:        tags,
	}
}

func samePatternSet(t *testing.T) []*types.RelationshipPattern {
	t.Helper()
	return []*types.RelationshipPattern{
		{
			Name:             "same-domain-related",
			RelationshipType: types.RelationshipRelated,
			BaseConfidence:   0.8,
			SuccessRate:      0.5,
			Conditions: datatypes.NewJSONType([]types.PatternCondition{
				{Field: "domain", Op: "eq", Value: "$source", Weight: 1},
			}),
		},
	}
}

func newTestDetector(t *testing.T, nodes map[string]*types.ContentNode, scorer Scorer) (*Detector, *fakePatternRepo) {
	t.Helper()
	patternRepo := newFakePatternRepo()
	d := NewDetector(&fakeNodeRepo{nodes: nodes}, patternRepo, scorer, nil, logger.NewNop())
	require.NoError(t, d.SeedPatterns(context.Background(), samePatternSet(t)))
	return d, patternRepo
}

func TestDetect_PatternMatch(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
		"other": node("other", "article", "elsewhere.example"),
	}
	d, _ := newTestDetector(t, nodes, nil)

	suggestions, err := d.Detect(context.Background(), "src", Options{})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "match", suggestions[0].TargetID)
	require.Equal(t, types.RelationshipRelated, suggestions[0].RelationshipType)
	require.InDelta(t, 0.8, suggestions[0].Confidence, 1e-9)
	require.NotNil(t, suggestions[0].PatternID)
	require.Contains(t, suggestions[0].Reasoning, "same-domain-related")
}

func TestDetect_MinConfidenceFilters(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
	}
	d, _ := newTestDetector(t, nodes, nil)

	suggestions, err := d.Detect(context.Background(), "src", Options{MinConfidence: 0.9})
	require.NoError(t, err)
	require.Empty(t, suggestions)
}

func TestSetDefaultMinConfidence(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
	}
	d, _ := newTestDetector(t, nodes, nil)

	// Pattern scores 0.8; a raised default floor filters it even when the
	// caller leaves Options zero.
	d.SetDefaultMinConfidence(0.9)
	suggestions, err := d.Detect(context.Background(), "src", Options{})
	require.NoError(t, err)
	require.Empty(t, suggestions)

	// Explicit per-call option still wins over the default.
	suggestions, err = d.Detect(context.Background(), "src", Options{MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
}

func TestDetect_MaxSuggestionsTruncates(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src": node("src", "article", "tools.example"),
	}
	for i := 0; i < 15; i++ {
		id := "c" + string(rune('a'+i))
		nodes[id] = node(id, "article", "tools.example")
	}
	d, _ := newTestDetector(t, nodes, nil)

	suggestions, err := d.Detect(context.Background(), "src", Options{MaxSuggestions: 3})
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
}

func TestDetect_EmbeddingSimilarity(t *testing.T) {
	src := node("src", "article", "a.example")
	src.Embedding = []float32{1, 0, 0}
	close := node("close", "article", "b.example")
	close.Embedding = []float32{1, 0.1, 0}
	far := node("far", "article", "c.example")
	far.Embedding = []float32{0, 0, 1}

	d, _ := newTestDetector(t, map[string]*types.ContentNode{
		"src": src, "close": close, "far": far,
	}, nil)

	suggestions, err := d.Detect(context.Background(), "src", Options{MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "close", suggestions[0].TargetID)
	require.Contains(t, suggestions[0].Reasoning, "embedding similarity")
}

func TestDetect_ExternalScorerOptIn(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "a.example"),
		"other": node("other", "video", "b.example"),
	}
	d, _ := newTestDetector(t, nodes, fixedScorer{score: 0.9})

	// Scorer disabled: nothing matches.
	suggestions, err := d.Detect(context.Background(), "src", Options{})
	require.NoError(t, err)
	require.Empty(t, suggestions)

	// Scorer enabled: candidate surfaces.
	suggestions, err = d.Detect(context.Background(), "src", Options{UseScorer: true})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "other", suggestions[0].TargetID)
}

func TestDetect_UnknownSource(t *testing.T) {
	d, _ := newTestDetector(t, map[string]*types.ContentNode{}, nil)

	_, err := d.Detect(context.Background(), "missing", Options{})
	require.Error(t, err)
}

func TestDetect_RecordsPatternUsage(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
	}
	d, patternRepo := newTestDetector(t, nodes, nil)

	_, err := d.Detect(context.Background(), "src", Options{})
	require.NoError(t, err)

	patternRepo.mu.Lock()
	defer patternRepo.mu.Unlock()
	require.Len(t, patternRepo.stats, 1)
	for _, stat := range patternRepo.stats {
		require.Equal(t, 1.0, stat[0], "usage count should be persisted")
	}
}

func TestRecordOutcome_MovesSuccessRate(t *testing.T) {
	nodes := map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
	}
	d, _ := newTestDetector(t, nodes, nil)

	suggestions, err := d.Detect(context.Background(), "src", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	patternID := *suggestions[0].PatternID

	require.NoError(t, d.RecordOutcome(context.Background(), patternID, true))
	require.NoError(t, d.RecordOutcome(context.Background(), patternID, false))

	d.mu.Lock()
	defer d.mu.Unlock()
	var rate float64
	for _, p := range d.loaded {
		if p.ID == patternID {
			rate = p.SuccessRate
		}
	}
	// 0.5 -> 0.55 (accepted) -> 0.495 (rejected)
	require.InDelta(t, 0.495, rate, 1e-9)
}

func TestLowSuccessPatternIsDampened(t *testing.T) {
	patternRepo := newFakePatternRepo()
	d := NewDetector(&fakeNodeRepo{nodes: map[string]*types.ContentNode{
		"src":   node("src", "article", "tools.example"),
		"match": node("match", "article", "tools.example"),
	}}, patternRepo, nil, nil, logger.NewNop())

	patterns := samePatternSet(t)
	patterns[0].SuccessRate = 0.1
	require.NoError(t, d.SeedPatterns(context.Background(), patterns))

	suggestions, err := d.Detect(context.Background(), "src", Options{MinConfidence: 0.05})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.InDelta(t, 0.4, suggestions[0].Confidence, 1e-9)
}

func TestLoadPatternsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	content := `patterns:
  - name: same-domain-related
    relationship_type: related
    base_confidence: 0.7
    conditions:
      - field: domain
        op: eq
        value: $source
        weight: 1
  - name: tutorial-prerequisite
    relationship_type: prerequisite
    conditions:
      - field: tags
        op: contains
        value: tutorial
        weight: 2
      - field: content_type
        op: eq
        value: article
        weight: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	patterns, err := LoadPatternsFromFile(path)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	require.Equal(t, "same-domain-related", patterns[0].Name)
	require.InDelta(t, 0.7, patterns[0].BaseConfidence, 1e-9)
	require.Equal(t, types.RelationshipPrerequisite, patterns[1].RelationshipType)
	require.Len(t, patterns[1].Conditions.Data(), 2)
	// Omitted base confidence falls back to the default.
	require.InDelta(t, 0.5, patterns[1].BaseConfidence, 1e-9)
}

func TestLoadPatternsFromFile_RejectsBadRules(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"missing-name": `patterns:
  - relationship_type: related
    conditions:
      - {field: domain, op: eq, value: x, weight: 1}
`,
		"bad-relationship": `patterns:
  - name: p
    relationship_type: bogus
    conditions:
      - {field: domain, op: eq, value: x, weight: 1}
`,
		"bad-op": `patterns:
  - name: p
    relationship_type: related
    conditions:
      - {field: domain, op: regex, value: x, weight: 1}
`,
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := LoadPatternsFromFile(path)
		require.Error(t, err, name)
	}
}
