package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/audit"
	"github.com/marketloom/pointer-engine/internal/cache"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/security"
	"github.com/marketloom/pointer-engine/internal/types"
	"github.com/marketloom/pointer-engine/internal/validation"
)

type fakePointerRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.ContentPointer
}

func newFakePointerRepo() *fakePointerRepo {
	return &fakePointerRepo{rows: make(map[uuid.UUID]*types.ContentPointer)}
}

func (r *fakePointerRepo) Create(ctx context.Context, tx *gorm.DB, p *types.ContentPointer) (*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p.Clone()
	return p, nil
}

func (r *fakePointerRepo) Update(ctx context.Context, tx *gorm.DB, p *types.ContentPointer) (*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p.Clone()
	return p, nil
}

func (r *fakePointerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[id]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (r *fakePointerRepo) GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID string) ([]*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ContentPointer
	for _, p := range r.rows {
		if p.SourceID == sourceID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *fakePointerRepo) GetByTargetID(ctx context.Context, tx *gorm.DB, targetID string) ([]*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ContentPointer
	for _, p := range r.rows {
		if p.TargetID == targetID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *fakePointerRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.ContentPointer, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r *fakePointerRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type testEnv struct {
	service *Service
	repo    *fakePointerRepo
	queue   *validation.Queue
	cache   *cache.MemoryCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	repo := newFakePointerRepo()
	queue := validation.NewQueue()
	c := cache.NewMemoryCache(100, time.Minute, log)
	filter := security.NewFilter([]string{"spam.example"}, nil, log)

	service, err := NewService(repo, queue, c, filter, audit.NopSink{}, nil, log)
	require.NoError(t, err)
	return &testEnv{service: service, repo: repo, queue: queue, cache: c}
}

func createPointer(t *testing.T, env *testEnv, source, target string, pt types.PointerType) *types.ContentPointer {
	t.Helper()
	p, err := env.service.Create(context.Background(), CreateInput{
		SourceID:    source,
		TargetID:    target,
		PointerType: pt,
	})
	require.NoError(t, err)
	return p
}

func TestCreate_DefaultsAndEnqueue(t *testing.T) {
	env := newTestEnv(t)
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)

	require.NotEqual(t, uuid.Nil, p.ID)
	require.Equal(t, types.ValidationPending, p.ValidationStatus)
	require.Equal(t, types.RelationshipRelated, p.RelationshipType)
	require.Equal(t, 0.5, p.Metadata.Data().TrustScore)
	require.True(t, env.queue.Contains(p.ID))

	stored, err := env.repo.GetByID(context.Background(), nil, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreate_SecurityRejectedPerformsNoMutation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), CreateInput{
		SourceID:    "article-1",
		TargetID:    "javascript:alert(1)",
		PointerType: types.PointerTypeURL,
	})
	require.Error(t, err)
	require.True(t, apperr.IsSecurity(err))

	require.Equal(t, 0, env.queue.Len())
	require.Empty(t, env.service.All())

	all, err := env.repo.GetAll(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCreate_UnknownPointerTypeRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), CreateInput{
		SourceID:    "a",
		TargetID:    "b",
		PointerType: "bogus",
	})
	require.Error(t, err)
}

func TestUpdate_CriticalFieldResetsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)

	// Simulate a completed validation cycle.
	env.queue.Drain()
	require.NoError(t, env.service.ApplyValidation(ctx, types.ValidationResult{
		PointerID: p.ID,
		Status:    types.ValidationValid,
		Detail:    types.DetailOK,
		CheckedAt: time.Now(),
	}))

	// Prime the content cache for the old target.
	require.NoError(t, env.cache.Set(ctx, cache.NamespaceContent, "tool-42", []byte("x"), time.Minute))

	newTarget := "tool-99"
	updated, err := env.service.Update(ctx, p.ID, UpdatePatch{TargetID: &newTarget})
	require.NoError(t, err)
	require.Equal(t, types.ValidationPending, updated.ValidationStatus)
	require.Nil(t, updated.LastValidated)
	require.True(t, env.queue.Contains(p.ID))

	_, hit, _ := env.cache.Get(ctx, cache.NamespaceContent, "tool-42")
	require.False(t, hit, "old target's cache entry must be purged")

	require.Empty(t, env.service.GetByTarget(ctx, "tool-42"))
	require.Len(t, env.service.GetByTarget(ctx, "tool-99"), 1)
}

func TestUpdate_MetadataOnlyKeepsValidationState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)

	env.queue.Drain()
	require.NoError(t, env.service.ApplyValidation(ctx, types.ValidationResult{
		PointerID: p.ID,
		Status:    types.ValidationValid,
		Detail:    types.DetailOK,
		CheckedAt: time.Now(),
	}))

	updated, err := env.service.Update(ctx, p.ID, UpdatePatch{
		Metadata: &types.PointerMetadata{Tags: []string{"promo"}},
	})
	require.NoError(t, err)
	require.Equal(t, types.ValidationValid, updated.ValidationStatus)
	require.False(t, env.queue.Contains(p.ID))
	require.Equal(t, []string{"promo"}, updated.Metadata.Data().Tags)
}

func TestUpdate_CriticalToUnsafeTargetRejected(t *testing.T) {
	env := newTestEnv(t)
	p := createPointer(t, env, "article-1", "https://ok.example/x", types.PointerTypeURL)

	bad := "javascript:alert(1)"
	_, err := env.service.Update(context.Background(), p.ID, UpdatePatch{TargetID: &bad})
	require.Error(t, err)
	require.True(t, apperr.IsSecurity(err))

	// Registry keeps the old target.
	got, err := env.service.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, "https://ok.example/x", got.TargetID)
}

func TestUpdate_NotFound(t *testing.T) {
	env := newTestEnv(t)

	target := "x"
	_, err := env.service.Update(context.Background(), uuid.New(), UpdatePatch{TargetID: &target})
	require.Error(t, err)
	require.True(t, apperr.IsNotFound(err))
}

func TestDelete_RemovesEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)
	require.NoError(t, env.cache.Set(ctx, cache.NamespaceContent, "tool-42", []byte("x"), time.Minute))

	ok, err := env.service.Delete(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := env.service.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, env.queue.Contains(p.ID))
	_, hit, _ := env.cache.Get(ctx, cache.NamespaceContent, "tool-42")
	require.False(t, hit)

	ok, err = env.service.Delete(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, ok, "second delete reports absence")
}

func TestRecordAccess_NotLostUnderConcurrentUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)

	const writes = 300
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			require.NoError(t, env.service.RecordAccess(ctx, p.ID, time.Now()))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			prio := i
			_, err := env.service.Update(ctx, p.ID, UpdatePatch{Priority: &prio})
			require.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			require.NoError(t, env.service.ApplyValidation(ctx, types.ValidationResult{
				PointerID: p.ID,
				Status:    types.ValidationValid,
				Detail:    types.DetailOK,
				CheckedAt: time.Now(),
			}))
		}
	}()
	wg.Wait()

	got, err := env.service.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(writes), got.AccessCount, "every access must survive concurrent updates")
	require.Equal(t, types.ValidationValid, got.ValidationStatus, "applied status must not be reverted by a stale clone")
	require.NotNil(t, got.LastValidated)
}

func TestRecordAccess_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "tool-42", types.PointerTypeID)

	at := time.Now()
	require.NoError(t, env.service.RecordAccess(ctx, p.ID, at))
	require.NoError(t, env.service.RecordAccess(ctx, p.ID, at.Add(time.Second)))

	got, err := env.service.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.AccessCount)
	require.NotNil(t, got.LastAccessed)
}

func TestApplyValidation_PreservesDetailInMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createPointer(t, env, "article-1", "https://gone.example/x", types.PointerTypeURL)

	checked := time.Now()
	require.NoError(t, env.service.ApplyValidation(ctx, types.ValidationResult{
		PointerID: p.ID,
		Status:    types.ValidationBroken,
		Detail:    types.DetailForbidden,
		CheckedAt: checked,
	}))

	got, err := env.service.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.ValidationBroken, got.ValidationStatus)
	require.Equal(t, string(types.DetailForbidden), got.Metadata.Data().LastValidationDetail)
	require.NotNil(t, got.LastValidated)
	require.WithinDuration(t, checked, *got.LastValidated, time.Second)
}

func TestWarmUp_RebuildsIndexAndRequeuesPending(t *testing.T) {
	log := logger.NewNop()
	repo := newFakePointerRepo()
	queue := validation.NewQueue()
	c := cache.NewMemoryCache(100, time.Minute, log)
	filter := security.NewFilter(nil, nil, log)

	pending := &types.ContentPointer{
		ID:               uuid.New(),
		SourceID:         "a",
		TargetID:         "t1",
		PointerType:      types.PointerTypeID,
		ValidationStatus: types.ValidationPending,
		Metadata:         datatypes.NewJSONType(types.PointerMetadata{}),
	}
	valid := &types.ContentPointer{
		ID:               uuid.New(),
		SourceID:         "a",
		TargetID:         "t2",
		PointerType:      types.PointerTypeID,
		ValidationStatus: types.ValidationValid,
		Metadata:         datatypes.NewJSONType(types.PointerMetadata{}),
	}
	repo.rows[pending.ID] = pending
	repo.rows[valid.ID] = valid

	service, err := NewService(repo, queue, c, filter, audit.NopSink{}, nil, log)
	require.NoError(t, err)

	require.Len(t, service.All(), 2)
	require.True(t, queue.Contains(pending.ID))
	require.False(t, queue.Contains(valid.ID))
}
