package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

// ContentNodeRepo is read-only from the engine's point of view. The content
// store owns these rows; we only mirror enough to feed relationship detection
// and slug/id validation.
type ContentNodeRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.ContentNode, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.ContentNode, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentNode, error)
	ExistsBySlug(ctx context.Context, tx *gorm.DB, slug string) (bool, error)
}

type contentNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentNodeRepo(db *gorm.DB, baseLog *logger.Logger) ContentNodeRepo {
	return &contentNodeRepo{db: db, log: baseLog.With("repo", "ContentNodeRepo")}
}

func (r *contentNodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.ContentNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == "" {
		return nil, nil
	}

	var result types.ContentNode
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

func (r *contentNodeRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.ContentNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if slug == "" {
		return nil, nil
	}

	var result types.ContentNode
	err := transaction.WithContext(ctx).
		Where("slug = ?", slug).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *contentNodeRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.ContentNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ContentNode
	if err := transaction.WithContext(ctx).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *contentNodeRepo) ExistsBySlug(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if slug == "" {
		return false, nil
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.ContentNode{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
