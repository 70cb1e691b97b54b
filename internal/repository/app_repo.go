package repository

import (
	"context"
	"errors"
	"time"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// metadataColumns 重新抓取市场信息时会覆盖的列，分析结果列不在其中
var metadataColumns = []string{
	"title", "creator", "downloads", "rating", "release_date",
	"price", "version_code", "offer_type", "requires_internet", "updated_at",
}

type AppRepository interface {
	// 创建或更新应用元数据，不会覆盖已有的分析结果
	Upsert(ctx context.Context, app *domain.AppRecord) error
	FindByID(ctx context.Context, id string) (*domain.AppRecord, error)
	// 全部应用（预加载分类，按 ID 排序）
	FindAll(ctx context.Context) ([]*domain.AppRecord, error)
	// 需要下载分析的应用（需要网络权限、未分析、免费，按 ID 排序）
	ListPending(ctx context.Context) ([]*domain.AppRecord, error)
	// 恢复点使用的稳定序列：需要网络权限且免费（不论是否已分析），按 ID 排序
	ListCandidates(ctx context.Context) ([]*domain.AppRecord, error)
	// 添加 (分类, 子分类)，已存在时忽略
	AddCategory(ctx context.Context, appID, category, subcategory string) error
	SaveFindings(ctx context.Context, appID string, findings domain.Findings) error
	// 记录分析失败原因，应用保持未分析状态
	MarkFailed(ctx context.Context, appID string, reason string) error
	Count(ctx context.Context) (int64, error)
	SearchTitle(ctx context.Context, title string) (*domain.AppRecord, error)
}

type appRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAppRepository(db *gorm.DB, logger *logrus.Logger) AppRepository {
	return &appRepo{
		db:     db,
		logger: logger,
	}
}

func (r *appRepo) Upsert(ctx context.Context, app *domain.AppRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(metadataColumns),
			}).
			Create(app).Error
		if err != nil {
			return err
		}

		for _, c := range app.Categories {
			if err := addCategory(tx, app.ID, c.Category, c.Subcategory); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *appRepo) FindByID(ctx context.Context, id string) (*domain.AppRecord, error) {
	var app domain.AppRecord
	err := r.db.WithContext(ctx).
		Preload("Categories", orderCategories).
		First(&app, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (r *appRepo) FindAll(ctx context.Context) ([]*domain.AppRecord, error) {
	var apps []*domain.AppRecord
	err := r.db.WithContext(ctx).
		Preload("Categories", orderCategories).
		Order("id ASC").
		Find(&apps).Error
	return apps, err
}

func (r *appRepo) ListPending(ctx context.Context) ([]*domain.AppRecord, error) {
	var apps []*domain.AppRecord
	err := r.db.WithContext(ctx).
		Where("requires_internet = ? AND analyzed = ? AND price = ?", true, false, domain.PriceFree).
		Order("id ASC").
		Find(&apps).Error
	return apps, err
}

func (r *appRepo) ListCandidates(ctx context.Context) ([]*domain.AppRecord, error) {
	var apps []*domain.AppRecord
	err := r.db.WithContext(ctx).
		Where("requires_internet = ? AND price = ?", true, domain.PriceFree).
		Order("id ASC").
		Find(&apps).Error
	return apps, err
}

func (r *appRepo) AddCategory(ctx context.Context, appID, category, subcategory string) error {
	return addCategory(r.db.WithContext(ctx), appID, category, subcategory)
}

func addCategory(db *gorm.DB, appID, category, subcategory string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.AppCategory{
			AppID:       appID,
			Category:    category,
			Subcategory: subcategory,
		}).Error
}

func (r *appRepo) SaveFindings(ctx context.Context, appID string, f domain.Findings) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.AppRecord{}).
		Where("id = ?", appID).
		Updates(map[string]interface{}{
			"analyzed":                             true,
			"analysis_error":                       "",
			"analyzed_at":                          now,
			"finding_trust_managers":               f.TrustManagers,
			"finding_naive_trust_managers":         f.NaiveTrustManagers,
			"finding_insecure_factories":           f.InsecureFactories,
			"finding_hostname_verifiers":           f.HostnameVerifiers,
			"finding_naive_hostname_verifiers":     f.NaiveHostnameVerifiers,
			"finding_allow_all_hostname_verifiers": f.AllowAllHostnameVerifiers,
			"finding_ssl_error_handlers":           f.SSLErrorHandlers,
		})
	if result.Error != nil {
		r.logger.WithError(result.Error).WithField("app_id", appID).Error("Save findings failed")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appRepo) MarkFailed(ctx context.Context, appID string, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.AppRecord{}).
		Where("id = ?", appID).
		Update("analysis_error", reason)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.AppRecord{}).Count(&n).Error
	return n, err
}

func (r *appRepo) SearchTitle(ctx context.Context, title string) (*domain.AppRecord, error) {
	var app domain.AppRecord
	err := r.db.WithContext(ctx).
		Preload("Categories", orderCategories).
		Where("title = ?", title).
		Order("id ASC").
		First(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func orderCategories(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
