package analyzer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/retry"
)

// ErrInvalidAPK 文件不是可分析的 APK
var ErrInvalidAPK = errors.New("invalid apk")

// Analyzer TLS 校验静态分析器
type Analyzer interface {
	Analyze(ctx context.Context, apkPath string) (*domain.Findings, error)
}

// Item 报告中的一个类或方法
type Item struct {
	Class  string `json:"class"`
	Method string `json:"method,omitempty"`
	// Empty 方法体为空（或直接返回），即 naive 实现
	Empty bool `json:"empty"`
}

// Report 外部检查脚本输出的 JSON
type Report struct {
	TrustManagers             []Item `json:"trustmanager"`
	InsecureSocketFactories   []Item `json:"insecuresocketfactory"`
	CustomHostnameVerifiers   []Item `json:"customhostnameverifier"`
	AllowAllHostnameVerifiers []Item `json:"allowallhostnameverifier"`
	SSLErrorHandlers          []Item `json:"onreceivedsslerror"`
}

// Findings 报告转换为计数：naive 为 empty 的 TrustManager / HostnameVerifier 数量
func (r *Report) Findings() domain.Findings {
	return domain.Findings{
		TrustManagers:             len(r.TrustManagers),
		NaiveTrustManagers:        countEmpty(r.TrustManagers),
		InsecureFactories:         len(r.InsecureSocketFactories),
		HostnameVerifiers:         len(r.CustomHostnameVerifiers),
		NaiveHostnameVerifiers:    countEmpty(r.CustomHostnameVerifiers),
		AllowAllHostnameVerifiers: len(r.AllowAllHostnameVerifiers),
		SSLErrorHandlers:          len(r.SSLErrorHandlers),
	}
}

func countEmpty(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Empty {
			n++
		}
	}
	return n
}

// ValidateAPK 检查文件是 zip 且包含 classes.dex；失败的错误不可重试
func ValidateAPK(path string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return retry.NewNonRetryableError(fmt.Errorf("%w: %s: %v", ErrInvalidAPK, path, err))
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name == "classes.dex" {
			return nil
		}
	}
	return retry.NewNonRetryableError(fmt.Errorf("%w: %s has no classes.dex", ErrInvalidAPK, path))
}

// IsAPKName 文件名是否为 .apk
func IsAPKName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".apk")
}
