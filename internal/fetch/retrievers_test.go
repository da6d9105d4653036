package fetch

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/types"
)

type stubNodes struct {
	nodes []*types.ContentNode
}

func (s *stubNodes) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.ContentNode, error) {
	for _, n := range s.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, nil
}

func (s *stubNodes) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.ContentNode, error) {
	for _, n := range s.nodes {
		if n.Slug == slug {
			return n, nil
		}
	}
	return nil, nil
}

func (s *stubNodes) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentNode, error) {
	return s.nodes, nil
}

func (s *stubNodes) ExistsBySlug(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	n, err := s.GetBySlug(ctx, tx, slug)
	return n != nil, err
}

func TestSlugRetriever_ResolvesBySlugNotID(t *testing.T) {
	nodes := &stubNodes{nodes: []*types.ContentNode{
		{ID: "node-1", Slug: "intro-to-widgets", Title: "Intro to Widgets", ContentType: "text/html"},
		{ID: "node-2", Slug: "advanced-widgets", Title: "Advanced Widgets", ContentType: "text/html"},
	}}
	r := NewSlugRetriever(nodes)
	ctx := context.Background()

	got, err := r.Fetch(ctx, &types.ContentPointer{TargetID: "advanced-widgets", PointerType: types.PointerTypeSlug})
	if err != nil {
		t.Fatalf("fetch by slug: %v", err)
	}
	if got.Body != "Advanced Widgets" {
		t.Fatalf("slug resolved to wrong node: %+v", got)
	}

	// A raw row id is not a slug; it must miss.
	if _, err := r.Fetch(ctx, &types.ContentPointer{TargetID: "node-1", PointerType: types.PointerTypeSlug}); err == nil {
		t.Fatalf("expected miss when target is an id, not a slug")
	}
}

func TestIDRetriever_ResolvesByID(t *testing.T) {
	nodes := &stubNodes{nodes: []*types.ContentNode{
		{ID: "node-1", Slug: "intro-to-widgets", Title: "Intro to Widgets"},
	}}
	r := NewIDRetriever(nodes)
	ctx := context.Background()

	got, err := r.Fetch(ctx, &types.ContentPointer{TargetID: "node-1", PointerType: types.PointerTypeID})
	if err != nil {
		t.Fatalf("fetch by id: %v", err)
	}
	if got.Body != "Intro to Widgets" {
		t.Fatalf("id resolved to wrong node: %+v", got)
	}

	if _, err := r.Fetch(ctx, &types.ContentPointer{TargetID: "intro-to-widgets", PointerType: types.PointerTypeID}); err == nil {
		t.Fatalf("expected miss when target is a slug, not an id")
	}
}
