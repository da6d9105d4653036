package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

type PatternRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, pattern *types.RelationshipPattern) (*types.RelationshipPattern, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.RelationshipPattern, error)
	UpdateStats(ctx context.Context, tx *gorm.DB, id uuid.UUID, usageCount int64, successRate float64) error
}

type patternRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPatternRepo(db *gorm.DB, baseLog *logger.Logger) PatternRepo {
	return &patternRepo{db: db, log: baseLog.With("repo", "PatternRepo")}
}

func (r *patternRepo) Upsert(ctx context.Context, tx *gorm.DB, pattern *types.RelationshipPattern) (*types.RelationshipPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if pattern == nil {
		return nil, nil
	}
	if pattern.ID == uuid.Nil {
		pattern.ID = uuid.New()
	}

	if err := transaction.WithContext(ctx).Save(pattern).Error; err != nil {
		return nil, err
	}
	return pattern, nil
}

func (r *patternRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.RelationshipPattern, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.RelationshipPattern
	if err := transaction.WithContext(ctx).
		Order("name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *patternRepo) UpdateStats(ctx context.Context, tx *gorm.DB, id uuid.UUID, usageCount int64, successRate float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.RelationshipPattern{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count":  usageCount,
			"success_rate": successRate,
		}).Error
}
