package domain

import (
	"strings"
	"time"
)

// PriceFree 市场上免费应用的价格显示
const PriceFree = "Free"

// PermissionInternet 网络访问权限
const PermissionInternet = "android.permission.INTERNET"

// Findings 静态分析结果（TLS 校验相关代码的计数）
type Findings struct {
	TrustManagers             int `gorm:"default:0" json:"trust_managers"`
	NaiveTrustManagers        int `gorm:"default:0" json:"naive_trust_managers"`
	InsecureFactories         int `gorm:"default:0" json:"insecure_factories"`
	HostnameVerifiers         int `gorm:"default:0" json:"hostname_verifiers"`
	NaiveHostnameVerifiers    int `gorm:"default:0" json:"naive_hostname_verifiers"`
	AllowAllHostnameVerifiers int `gorm:"default:0" json:"allow_all_hostname_verifiers"`
	SSLErrorHandlers          int `gorm:"default:0" json:"ssl_error_handlers"`
}

// AppCategory 应用所属的 (分类, 子分类)
type AppCategory struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	AppID       string `gorm:"type:varchar(255);uniqueIndex:uk_app_category;not null" json:"-"`
	Category    string `gorm:"type:varchar(100);uniqueIndex:uk_app_category;not null" json:"category"`
	Subcategory string `gorm:"type:varchar(100);uniqueIndex:uk_app_category" json:"subcategory"`
}

func (AppCategory) TableName() string {
	return "app_categories"
}

// AppRecord 市场应用记录（元数据 + 分析结果）
type AppRecord struct {
	ID      string `gorm:"type:varchar(255);primaryKey" json:"id"`
	Title   string `gorm:"type:varchar(500)" json:"title"`
	Creator string `gorm:"type:varchar(500)" json:"creator"`

	Downloads   int64      `gorm:"default:0" json:"downloads"`
	Rating      float64    `gorm:"default:0" json:"rating"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Price       string     `gorm:"type:varchar(50)" json:"price"`
	VersionCode int        `json:"version_code"`
	OfferType   int        `json:"offer_type"`

	RequiresInternet bool          `gorm:"index:idx_pending" json:"requires_internet"`
	Categories       []AppCategory `gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE" json:"categories"`

	// 分析状态：Analyzed 为 false 时 Findings 无意义
	Analyzed      bool       `gorm:"index:idx_pending;default:false" json:"analyzed"`
	Findings      Findings   `gorm:"embedded;embeddedPrefix:finding_" json:"findings"`
	AnalysisError string     `gorm:"type:text" json:"analysis_error,omitempty"`
	AnalyzedAt    *time.Time `json:"analyzed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AppRecord) TableName() string {
	return "apps"
}

// IsFree 是否免费
func (a *AppRecord) IsFree() bool {
	return a.Price == PriceFree
}

// Analysis 返回分析结果；未分析时第二个返回值为 false
func (a *AppRecord) Analysis() (Findings, bool) {
	if !a.Analyzed {
		return Findings{}, false
	}
	return a.Findings, true
}

// ShouldProcess 是否需要下载并分析：需要网络权限、尚未分析且免费
func (a *AppRecord) ShouldProcess() bool {
	return a.RequiresInternet && !a.Analyzed && a.IsFree()
}

// HasCategory 检查是否已包含该 (分类, 子分类)
func (a *AppRecord) HasCategory(category, subcategory string) bool {
	for _, c := range a.Categories {
		if c.Category == category && c.Subcategory == subcategory {
			return true
		}
	}
	return false
}

// CategoryNames 去重后的分类名（忽略子分类），保持出现顺序
func (a *AppRecord) CategoryNames() []string {
	seen := make(map[string]struct{}, len(a.Categories))
	names := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		if _, ok := seen[c.Category]; ok {
			continue
		}
		seen[c.Category] = struct{}{}
		names = append(names, c.Category)
	}
	return names
}

// NeedsInternet 判断权限列表中是否声明了网络权限
func NeedsInternet(permissions []string) bool {
	for _, p := range permissions {
		if strings.Contains(p, PermissionInternet) {
			return true
		}
	}
	return false
}
