package repository

import (
	"context"
	"errors"
	"time"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RestorePointRepository 恢复点存储，用于中断后继续处理
type RestorePointRepository interface {
	// 不存在时返回 0
	Get(ctx context.Context, name string) (int, error)
	Save(ctx context.Context, name string, position int) error
	Clear(ctx context.Context, name string) error
}

type restorePointRepo struct {
	db *gorm.DB
}

func NewRestorePointRepository(db *gorm.DB) RestorePointRepository {
	return &restorePointRepo{db: db}
}

func (r *restorePointRepo) Get(ctx context.Context, name string) (int, error) {
	var rp domain.RestorePoint
	err := r.db.WithContext(ctx).First(&rp, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rp.Position, nil
}

func (r *restorePointRepo) Save(ctx context.Context, name string, position int) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
		}).
		Create(&domain.RestorePoint{
			Name:      name,
			Position:  position,
			UpdatedAt: time.Now().UTC(),
		}).Error
}

func (r *restorePointRepo) Clear(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Delete(&domain.RestorePoint{}, "name = ?", name).Error
}
