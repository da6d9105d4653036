package detect

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/marketloom/pointer-engine/internal/types"
)

type patternFile struct {
	Patterns []patternSpec `yaml:"patterns"`
}

type patternSpec struct {
	Name             string                   `yaml:"name"`
	RelationshipType string                   `yaml:"relationship_type"`
	BaseConfidence   float64                  `yaml:"base_confidence"`
	Conditions       []types.PatternCondition `yaml:"conditions"`
}

// LoadPatternsFromFile parses a YAML rule file into relationship patterns.
// Stats (usage, success rate) start at their defaults; the repo upsert keyed
// by name preserves stats for rules that already exist.
func LoadPatternsFromFile(path string) ([]*types.RelationshipPattern, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	out := make([]*types.RelationshipPattern, 0, len(file.Patterns))
	for i, spec := range file.Patterns {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, fmt.Errorf("pattern %d: name is required", i)
		}
		rt := types.RelationshipType(spec.RelationshipType)
		if !types.ValidRelationshipType(rt) {
			return nil, fmt.Errorf("pattern %q: unknown relationship type %q", spec.Name, spec.RelationshipType)
		}
		if len(spec.Conditions) == 0 {
			return nil, fmt.Errorf("pattern %q: at least one condition required", spec.Name)
		}
		for j, c := range spec.Conditions {
			if c.Weight <= 0 {
				return nil, fmt.Errorf("pattern %q condition %d: weight must be positive", spec.Name, j)
			}
			if !validOp(c.Op) {
				return nil, fmt.Errorf("pattern %q condition %d: unknown op %q", spec.Name, j, c.Op)
			}
		}
		base := spec.BaseConfidence
		if base <= 0 {
			base = 0.5
		}
		out = append(out, &types.RelationshipPattern{
			Name:             spec.Name,
			RelationshipType: rt,
			Conditions:       datatypes.NewJSONType(spec.Conditions),
			BaseConfidence:   base,
			SuccessRate:      0.5,
		})
	}
	return out, nil
}

func validOp(op string) bool {
	switch op {
	case "eq", "neq", "contains", "gte", "lte":
		return true
	}
	return false
}

// conditionMatches evaluates one predicate against a candidate node. The
// literal "$source" compares the candidate's field to the source node's.
func conditionMatches(c types.PatternCondition, source, candidate *types.ContentNode) bool {
	want := c.Value
	if want == "$source" {
		want = nodeField(source, c.Field)
	}
	got := nodeField(candidate, c.Field)

	switch c.Op {
	case "eq":
		return strings.EqualFold(got, want)
	case "neq":
		return !strings.EqualFold(got, want)
	case "contains":
		if c.Field == "tags" {
			for _, t := range candidate.Tags {
				if strings.EqualFold(t, want) {
					return true
				}
			}
			return false
		}
		return strings.Contains(strings.ToLower(got), strings.ToLower(want))
	case "gte", "lte":
		gotN, err1 := strconv.ParseFloat(got, 64)
		wantN, err2 := strconv.ParseFloat(want, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if c.Op == "gte" {
			return gotN >= wantN
		}
		return gotN <= wantN
	}
	return false
}

func nodeField(n *types.ContentNode, field string) string {
	switch field {
	case "content_type":
		return n.ContentType
	case "domain":
		return n.Domain
	case "language":
		return n.Language
	case "title":
		return n.Title
	case "quality_score":
		return strconv.FormatFloat(n.QualityScore, 'f', -1, 64)
	case "security_score":
		return strconv.FormatFloat(n.SecurityScore, 'f', -1, 64)
	case "tags":
		return strings.Join(n.Tags, ",")
	}
	return ""
}
