package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/audit"
	"github.com/marketloom/pointer-engine/internal/cache"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
	"github.com/marketloom/pointer-engine/internal/repos"
	"github.com/marketloom/pointer-engine/internal/security"
	"github.com/marketloom/pointer-engine/internal/types"
	"github.com/marketloom/pointer-engine/internal/validation"
)

const componentName = "PointerRegistry"

// CreateInput is what a caller supplies to register a pointer. The engine
// owns id assignment and validation state.
type CreateInput struct {
	SourceID         string
	TargetID         string
	PointerType      types.PointerType
	RelationshipType types.RelationshipType
	ConfidenceScore  float64
	Priority         int
	TTLSeconds       *int
	Metadata         types.PointerMetadata
	Fallback         *types.FallbackContent
}

// UpdatePatch applies partial changes. Nil fields are left untouched.
// TargetID and PointerType are the critical fields: changing either resets
// validation, because they decide resolvability.
type UpdatePatch struct {
	TargetID         *string
	PointerType      *types.PointerType
	RelationshipType *types.RelationshipType
	ConfidenceScore  *float64
	Priority         *int
	TTLSeconds       *int
	Metadata         *types.PointerMetadata
	Fallback         *types.FallbackContent
}

// Service is the authoritative pointer registry: an in-memory index running
// write-through over the durable repo. Constructed once at process start and
// passed by handle; there is no package-level instance.
type Service struct {
	log     *logger.Logger
	repo    repos.PointerRepo
	queue   *validation.Queue
	cache   cache.Cache
	filter  *security.Filter
	sink    audit.Sink
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	byID     map[uuid.UUID]*types.ContentPointer
	bySource map[string]map[uuid.UUID]struct{}
	byTarget map[string]map[uuid.UUID]struct{}
}

func NewService(repo repos.PointerRepo, queue *validation.Queue, c cache.Cache,
	filter *security.Filter, sink audit.Sink, metrics *observability.Metrics,
	baseLog *logger.Logger) (*Service, error) {
	s := &Service{
		log:      baseLog.With("service", componentName),
		repo:     repo,
		queue:    queue,
		cache:    c,
		filter:   filter,
		sink:     sink,
		metrics:  metrics,
		now:      time.Now,
		byID:     make(map[uuid.UUID]*types.ContentPointer),
		bySource: make(map[string]map[uuid.UUID]struct{}),
		byTarget: make(map[string]map[uuid.UUID]struct{}),
	}
	if err := s.warmUp(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// SetNowFunc overrides the clock. Test helper.
func (s *Service) SetNowFunc(now func() time.Time) { s.now = now }

// warmUp rebuilds the index from the durable store so restarts do not lose
// pointers; pointers persisted mid-validation resume as pending.
func (s *Service) warmUp(ctx context.Context) error {
	pointers, err := s.repo.GetAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry warm-up: %w", err)
	}
	s.mu.Lock()
	for _, p := range pointers {
		s.indexLocked(p)
		if p.ValidationStatus == types.ValidationPending {
			s.queue.Enqueue(p.ID)
		}
	}
	s.mu.Unlock()
	s.log.Info("Registry warmed up", "pointers", len(pointers))
	return nil
}

// Create registers a new pointer. The security filter runs first; a rejection
// returns a SecurityError and performs no mutation anywhere.
func (s *Service) Create(ctx context.Context, input CreateInput) (*types.ContentPointer, error) {
	if input.SourceID == "" || input.TargetID == "" {
		return nil, fmt.Errorf("source_id and target_id are required")
	}
	if !types.ValidPointerType(input.PointerType) {
		return nil, fmt.Errorf("unknown pointer type %q", input.PointerType)
	}
	if input.RelationshipType == "" {
		input.RelationshipType = types.RelationshipRelated
	}
	if !types.ValidRelationshipType(input.RelationshipType) {
		return nil, fmt.Errorf("unknown relationship type %q", input.RelationshipType)
	}

	p := &types.ContentPointer{
		ID:               uuid.New(),
		SourceID:         input.SourceID,
		TargetID:         input.TargetID,
		PointerType:      input.PointerType,
		RelationshipType: input.RelationshipType,
		ValidationStatus: types.ValidationPending,
		ConfidenceScore:  clamp01(input.ConfidenceScore),
		Priority:         input.Priority,
		TTLSeconds:       input.TTLSeconds,
		Metadata:         datatypes.NewJSONType(input.Metadata),
		Fallback:         datatypes.NewJSONType(input.Fallback),
		CreatedAt:        s.now(),
		UpdatedAt:        s.now(),
	}

	check, err := s.filter.Check(p)
	if err != nil {
		s.record("create_rejected", audit.SeverityWarning, map[string]interface{}{
			"target_id": input.TargetID,
			"reason":    err.Error(),
		})
		return nil, err
	}

	meta := p.Metadata.Data()
	meta.TrustScore = check.TrustScore
	p.Metadata = datatypes.NewJSONType(meta)
	for _, warning := range check.Warnings {
		s.log.Warn("Pointer created with security warning", "pointer_id", p.ID, "warning", warning)
	}

	if _, err := s.repo.Create(ctx, nil, p); err != nil {
		return nil, fmt.Errorf("persist pointer: %w", err)
	}

	s.mu.Lock()
	s.indexLocked(p)
	s.mu.Unlock()

	s.queue.Enqueue(p.ID)
	s.metrics.Inc("pointer_created")
	s.record("create", audit.SeverityInfo, map[string]interface{}{
		"pointer_id": p.ID.String(),
		"source_id":  p.SourceID,
		"target_id":  p.TargetID,
	})
	return p.Clone(), nil
}

// Update applies a patch. Only changes to target id or pointer type reset
// validation; cosmetic changes keep the current status.
//
// Read, patch, persist, and index swap happen under one lock: a clone built
// outside it would overwrite concurrent access or validation writes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdatePatch) (*types.ContentPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		return nil, apperr.NewNotFound(id.String())
	}

	updated := existing.Clone()
	critical := false
	oldTarget := updated.TargetID

	if patch.TargetID != nil && *patch.TargetID != updated.TargetID {
		updated.TargetID = *patch.TargetID
		critical = true
	}
	if patch.PointerType != nil && *patch.PointerType != updated.PointerType {
		if !types.ValidPointerType(*patch.PointerType) {
			return nil, fmt.Errorf("unknown pointer type %q", *patch.PointerType)
		}
		updated.PointerType = *patch.PointerType
		critical = true
	}
	if patch.RelationshipType != nil {
		if !types.ValidRelationshipType(*patch.RelationshipType) {
			return nil, fmt.Errorf("unknown relationship type %q", *patch.RelationshipType)
		}
		updated.RelationshipType = *patch.RelationshipType
	}
	if patch.ConfidenceScore != nil {
		updated.ConfidenceScore = clamp01(*patch.ConfidenceScore)
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}
	if patch.TTLSeconds != nil {
		updated.TTLSeconds = patch.TTLSeconds
	}
	if patch.Metadata != nil {
		meta := *patch.Metadata
		// Trust score and validation detail are engine-owned.
		old := updated.Metadata.Data()
		meta.TrustScore = old.TrustScore
		meta.LastValidationDetail = old.LastValidationDetail
		updated.Metadata = datatypes.NewJSONType(meta)
	}
	if patch.Fallback != nil {
		updated.Fallback = datatypes.NewJSONType(patch.Fallback)
	}

	if critical {
		check, err := s.filter.Check(updated)
		if err != nil {
			s.record("update_rejected", audit.SeverityWarning, map[string]interface{}{
				"pointer_id": id.String(),
				"reason":     err.Error(),
			})
			return nil, err
		}
		meta := updated.Metadata.Data()
		meta.TrustScore = check.TrustScore
		meta.LastValidationDetail = ""
		updated.Metadata = datatypes.NewJSONType(meta)
		updated.ValidationStatus = types.ValidationPending
		updated.LastValidated = nil
	}

	updated.UpdatedAt = s.now()
	if _, err := s.repo.Update(ctx, nil, updated); err != nil {
		return nil, fmt.Errorf("persist pointer update: %w", err)
	}

	s.unindexLocked(existing)
	s.indexLocked(updated)

	if critical {
		s.queue.Enqueue(updated.ID)
		_ = s.cache.Delete(ctx, cache.NamespaceContent, oldTarget)
	}

	s.record("update", audit.SeverityInfo, map[string]interface{}{
		"pointer_id": id.String(),
		"critical":   critical,
	})
	return updated.Clone(), nil
}

// Delete removes the pointer from the registry, the validation queue, and the
// cache. No tombstone is kept.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		return false, nil
	}

	if err := s.repo.FullDeleteByID(ctx, nil, id); err != nil {
		return false, fmt.Errorf("delete pointer: %w", err)
	}

	s.unindexLocked(existing)
	s.queue.Remove(id)
	_ = s.cache.Delete(ctx, cache.NamespaceContent, existing.TargetID)

	s.metrics.Inc("pointer_deleted")
	s.record("delete", audit.SeverityInfo, map[string]interface{}{
		"pointer_id": id.String(),
		"target_id":  existing.TargetID,
	})
	return true, nil
}

// Get returns the pointer or nil when absent. The index is the fast path; a
// miss falls through to the durable store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.ContentPointer, error) {
	s.mu.RLock()
	p, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	stored, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byID[stored.ID]; ok {
		return current.Clone(), nil
	}
	s.indexLocked(stored)
	return stored.Clone(), nil
}

func (s *Service) GetBySource(ctx context.Context, sourceID string) []*types.ContentPointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(s.bySource[sourceID])
}

func (s *Service) GetByTarget(ctx context.Context, targetID string) []*types.ContentPointer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(s.byTarget[targetID])
}

// All returns a snapshot of every indexed pointer, for the read-side views.
func (s *Service) All() []*types.ContentPointer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.ContentPointer, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p.Clone())
	}
	return out
}

// RecordAccess bumps the monotonic access counter after a successful fetch.
func (s *Service) RecordAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return apperr.NewNotFound(id.String())
	}
	updated := p.Clone()
	updated.AccessCount++
	updated.LastAccessed = &at
	updated.UpdatedAt = s.now()
	if _, err := s.repo.Update(ctx, nil, updated); err != nil {
		return fmt.Errorf("persist access stats: %w", err)
	}
	s.byID[id] = updated
	return nil
}

// ApplyValidation is the single transition function for validationStatus. The
// fine-grained detail survives in metadata even though forbidden/not_found
// persist as broken.
func (s *Service) ApplyValidation(ctx context.Context, result types.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[result.PointerID]
	if !ok {
		return apperr.NewNotFound(result.PointerID.String())
	}
	updated := p.Clone()
	updated.ValidationStatus = result.Status
	checkedAt := result.CheckedAt
	updated.LastValidated = &checkedAt
	meta := updated.Metadata.Data()
	meta.LastValidationDetail = string(result.Detail)
	updated.Metadata = datatypes.NewJSONType(meta)
	updated.UpdatedAt = s.now()
	if _, err := s.repo.Update(ctx, nil, updated); err != nil {
		return fmt.Errorf("persist validation result: %w", err)
	}
	s.byID[result.PointerID] = updated

	if result.Status == types.ValidationBroken {
		s.metrics.Inc("pointer_broken")
		s.record("validation_broken", audit.SeverityWarning, map[string]interface{}{
			"pointer_id": result.PointerID.String(),
			"detail":     string(result.Detail),
		})
	}
	return nil
}

func (s *Service) record(action string, severity audit.Severity, meta map[string]interface{}) {
	s.sink.Record(audit.Event{
		Component: componentName,
		Action:    action,
		Metadata:  meta,
		Severity:  severity,
	})
}

func (s *Service) indexLocked(p *types.ContentPointer) {
	s.byID[p.ID] = p
	if s.bySource[p.SourceID] == nil {
		s.bySource[p.SourceID] = make(map[uuid.UUID]struct{})
	}
	s.bySource[p.SourceID][p.ID] = struct{}{}
	if s.byTarget[p.TargetID] == nil {
		s.byTarget[p.TargetID] = make(map[uuid.UUID]struct{})
	}
	s.byTarget[p.TargetID][p.ID] = struct{}{}
}

func (s *Service) unindexLocked(p *types.ContentPointer) {
	delete(s.byID, p.ID)
	if m := s.bySource[p.SourceID]; m != nil {
		delete(m, p.ID)
		if len(m) == 0 {
			delete(s.bySource, p.SourceID)
		}
	}
	if m := s.byTarget[p.TargetID]; m != nil {
		delete(m, p.ID)
		if len(m) == 0 {
			delete(s.byTarget, p.TargetID)
		}
	}
}

func (s *Service) collectLocked(ids map[uuid.UUID]struct{}) []*types.ContentPointer {
	out := make([]*types.ContentPointer, 0, len(ids))
	for id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p.Clone())
		}
	}
	sortByPriority(out)
	return out
}

func sortByPriority(pointers []*types.ContentPointer) {
	sort.Slice(pointers, func(i, j int) bool {
		if pointers[i].Priority != pointers[j].Priority {
			return pointers[i].Priority > pointers[j].Priority
		}
		return pointers[i].CreatedAt.Before(pointers[j].CreatedAt)
	})
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
