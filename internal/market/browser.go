package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/sirupsen/logrus"
)

// AllCategories 表示不过滤分类或子分类
const AllCategories = "all"

// uploadDateLayout 市场详情中的上传日期格式
const uploadDateLayout = "Jan 2, 2006"

// BrowseResult 一次浏览的统计
type BrowseResult struct {
	Lists   int `json:"lists"`   // 已抓取的 (分类, 子分类) 数
	Seen    int `json:"seen"`    // 列表中出现的应用数
	Created int `json:"created"` // 新建的应用记录数
	Linked  int `json:"linked"`  // 已有应用新增的分类数
}

// Browser 浏览市场列表并写入应用库
type Browser struct {
	client   Client
	apps     repository.AppRepository
	logger   *logrus.Logger
	limit    int
	offset   int
	progress progress.Func
}

// NewBrowser limit/offset 作用于每个子分类
func NewBrowser(client Client, apps repository.AppRepository, logger *logrus.Logger, limit, offset int) *Browser {
	return &Browser{
		client:   client,
		apps:     apps,
		logger:   logger,
		limit:    limit,
		offset:   offset,
		progress: progress.Nop,
	}
}

// OnProgress 设置进度回调，条目为 "分类/子分类"
func (b *Browser) OnProgress(fn progress.Func) {
	if fn == nil {
		fn = progress.Nop
	}
	b.progress = fn
}

// Browse 抓取分类下的应用列表；category/subcategory 为空或 "all" 表示全部
func (b *Browser) Browse(ctx context.Context, category, subcategory string) (*BrowseResult, error) {
	if err := ValidateWindow(b.limit, b.offset); err != nil {
		return nil, err
	}

	targets, err := b.resolve(ctx, category, subcategory)
	if err != nil {
		return nil, err
	}

	result := &BrowseResult{}
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		b.progress(i, len(targets), t.category+"/"+t.subcategory)

		if err := b.fetch(ctx, t.category, t.subcategory, result); err != nil {
			return result, err
		}
		result.Lists++
	}
	b.progress(len(targets), len(targets), "")

	b.logger.WithFields(logrus.Fields{
		"lists":   result.Lists,
		"seen":    result.Seen,
		"created": result.Created,
		"linked":  result.Linked,
	}).Info("Done fetching app lists")

	return result, nil
}

type listTarget struct {
	category    string
	subcategory string
}

func (b *Browser) resolve(ctx context.Context, category, subcategory string) ([]listTarget, error) {
	var categories []string
	if category != "" && category != AllCategories {
		categories = []string{category}
	} else {
		all, err := b.client.Categories(ctx)
		if err != nil {
			return nil, err
		}
		categories = all
	}

	var targets []listTarget
	for _, cat := range categories {
		if subcategory != "" && subcategory != AllCategories {
			targets = append(targets, listTarget{category: cat, subcategory: subcategory})
			continue
		}
		subs, err := b.client.Subcategories(ctx, cat)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			targets = append(targets, listTarget{category: cat, subcategory: sub})
		}
	}
	return targets, nil
}

// fetch 分页抓取一个子分类，某页为空时停止
func (b *Browser) fetch(ctx context.Context, category, subcategory string, result *BrowseResult) error {
	for _, w := range PageWindows(b.limit, b.offset) {
		docs, err := b.client.List(ctx, category, subcategory, w.Limit, w.Offset)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			result.Seen++
			if err := b.record(ctx, category, subcategory, doc, result); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Browser) record(ctx context.Context, category, subcategory string, doc Doc, result *BrowseResult) error {
	existing, err := b.apps.FindByID(ctx, doc.DocID)
	switch {
	case err == nil:
		if existing.HasCategory(category, subcategory) {
			return nil
		}
		result.Linked++
		return b.apps.AddCategory(ctx, doc.DocID, category, subcategory)
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	details, err := b.client.Details(ctx, doc.DocID)
	if err != nil {
		return err
	}

	app := NewAppRecord(doc, details)
	app.Categories = []domain.AppCategory{{AppID: app.ID, Category: category, Subcategory: subcategory}}
	if err := b.apps.Upsert(ctx, app); err != nil {
		return fmt.Errorf("save %s: %w", app.ID, err)
	}
	result.Created++
	return nil
}

// NewAppRecord 由列表条目和详情构造未分析的应用记录
func NewAppRecord(doc Doc, details *Details) *domain.AppRecord {
	app := &domain.AppRecord{
		ID:        doc.DocID,
		Title:     doc.Title,
		Creator:   doc.Creator,
		Price:     doc.Price,
		Downloads: int64(stats.ParseNumber(doc.Downloads)),
		Rating:    doc.Rating,
	}
	if details != nil {
		app.VersionCode = details.VersionCode
		app.OfferType = details.OfferType
		app.RequiresInternet = domain.NeedsInternet(details.Permissions)
		if t, err := time.Parse(uploadDateLayout, details.UploadDate); err == nil {
			app.ReleaseDate = &t
		}
	}
	return app
}
