package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

type PointerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pointer *types.ContentPointer) (*types.ContentPointer, error)
	Update(ctx context.Context, tx *gorm.DB, pointer *types.ContentPointer) (*types.ContentPointer, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentPointer, error)
	GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID string) ([]*types.ContentPointer, error)
	GetByTargetID(ctx context.Context, tx *gorm.DB, targetID string) ([]*types.ContentPointer, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentPointer, error)
	FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type pointerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPointerRepo(db *gorm.DB, baseLog *logger.Logger) PointerRepo {
	return &pointerRepo{db: db, log: baseLog.With("repo", "PointerRepo")}
}

func (r *pointerRepo) Create(ctx context.Context, tx *gorm.DB, pointer *types.ContentPointer) (*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if pointer == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(pointer).Error; err != nil {
		return nil, err
	}
	return pointer, nil
}

func (r *pointerRepo) Update(ctx context.Context, tx *gorm.DB, pointer *types.ContentPointer) (*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if pointer == nil || pointer.ID == uuid.Nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Save(pointer).Error; err != nil {
		return nil, err
	}
	return pointer, nil
}

func (r *pointerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var result types.ContentPointer
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *pointerRepo) GetBySourceID(ctx context.Context, tx *gorm.DB, sourceID string) ([]*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ContentPointer
	if sourceID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("priority DESC, created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *pointerRepo) GetByTargetID(ctx context.Context, tx *gorm.DB, targetID string) ([]*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ContentPointer
	if targetID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *pointerRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentPointer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ContentPointer
	if err := transaction.WithContext(ctx).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *pointerRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&types.ContentPointer{}).Error; err != nil {
		return err
	}
	return nil
}
