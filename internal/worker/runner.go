package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apk-analysis/hermes-go/internal/analyzer"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/market"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/retry"
	"github.com/sirupsen/logrus"
)

// 单个应用的处理结果
const (
	ResultAnalyzed = "analyzed"
	ResultFailed   = "failed"
)

// Recorder 业务指标记录器（middleware.Metrics 实现）
type Recorder interface {
	RecordAppProcessed(result string)
	ObserveDownload(d time.Duration)
	ObserveAnalysis(d time.Duration)
}

// Runner 处理单个应用：下载、校验、分析、保存结果
type Runner struct {
	client   market.Client
	analyzer analyzer.Analyzer
	apps     repository.AppRepository
	appDir   string
	retry    *retry.Config
	metrics  Recorder
	logger   *logrus.Logger
}

// NewRunner 创建 Runner；maxRetries 为下载的最大尝试次数
func NewRunner(
	client market.Client,
	a analyzer.Analyzer,
	apps repository.AppRepository,
	appDir string,
	maxRetries int,
	logger *logrus.Logger,
) *Runner {
	return &Runner{
		client:   client,
		analyzer: a,
		apps:     apps,
		appDir:   appDir,
		retry:    retry.NewConfig(maxRetries, logger),
		logger:   logger,
	}
}

// WithMetrics 设置指标记录器
func (r *Runner) WithMetrics(m Recorder) *Runner {
	r.metrics = m
	return r
}

// WithRetry 替换下载重试配置
func (r *Runner) WithRetry(cfg *retry.Config) *Runner {
	r.retry = cfg
	return r
}

// AppDir 下载目录
func (r *Runner) AppDir() string {
	return r.appDir
}

// Process 下载并分析一个应用。
// 分析失败时应用被标记为失败（保持未分析），错误原样返回，调用方可据此决定是否重新投递。
func (r *Runner) Process(ctx context.Context, app *domain.AppRecord) error {
	log := r.logger.WithField("app_id", app.ID)

	path, err := r.download(ctx, app)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("Download failed")
		return r.fail(ctx, app, fmt.Errorf("download failed: %w", err))
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("Failed to remove downloaded apk")
		}
	}()

	return r.AnalyzeFile(ctx, app, path)
}

// AnalyzeFile 分析已经在磁盘上的 APK 并保存结果，不删除文件
func (r *Runner) AnalyzeFile(ctx context.Context, app *domain.AppRecord, path string) error {
	start := time.Now()
	findings, err := r.analyzer.Analyze(ctx, path)
	if r.metrics != nil {
		r.metrics.ObserveAnalysis(time.Since(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WithError(err).WithField("app_id", app.ID).Warn("Analysis failed")
		return r.fail(ctx, app, fmt.Errorf("analysis failed: %w", err))
	}

	if err := r.apps.SaveFindings(ctx, app.ID, *findings); err != nil {
		return fmt.Errorf("failed to save findings for %s: %w", app.ID, err)
	}
	app.Analyzed = true
	app.Findings = *findings

	if r.metrics != nil {
		r.metrics.RecordAppProcessed(ResultAnalyzed)
	}
	r.logger.WithFields(logrus.Fields{
		"app_id":         app.ID,
		"trust_managers": findings.TrustManagers,
		"verifiers":      findings.HostnameVerifiers,
		"duration":       time.Since(start).Round(time.Millisecond),
	}).Debug("App analyzed")
	return nil
}

// fail 记录失败原因并返回原错误
func (r *Runner) fail(ctx context.Context, app *domain.AppRecord, cause error) error {
	if r.metrics != nil {
		r.metrics.RecordAppProcessed(ResultFailed)
	}
	if err := r.apps.MarkFailed(ctx, app.ID, cause.Error()); err != nil {
		r.logger.WithError(err).WithField("app_id", app.ID).Error("Failed to record analysis failure")
	}
	app.AnalysisError = cause.Error()
	return cause
}

// download 下载到 <app_dir>/<id>.apk
func (r *Runner) download(ctx context.Context, app *domain.AppRecord) (string, error) {
	if err := os.MkdirAll(r.appDir, 0o755); err != nil {
		return "", retry.NewNonRetryableError(fmt.Errorf("failed to create app dir: %w", err))
	}
	path := filepath.Join(r.appDir, app.ID+".apk")

	start := time.Now()
	cfg := r.retry.WithFields(logrus.Fields{"app_id": app.ID})
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		body, err := r.client.Download(ctx, app.ID, app.VersionCode, app.OfferType)
		if err != nil {
			return err
		}
		defer body.Close()
		return writeFile(path, body)
	})
	if r.metrics != nil {
		r.metrics.ObserveDownload(time.Since(start))
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func writeFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return retry.NewNonRetryableError(err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
