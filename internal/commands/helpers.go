package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/analyzer"
	"github.com/apk-analysis/hermes-go/internal/market"
	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/worker"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	// ErrNothingToDo 三个阶段全部跳过
	ErrNothingToDo = errors.New("what's the point if you skip everything?")
	// ErrNoApps 应用库为空，无法生成统计
	ErrNoApps = errors.New("no apps to analyze")
)

// store 打开的数据库及其仓库
type store struct {
	db      *gorm.DB
	apps    repository.AppRepository
	restore repository.RestorePointRepository
}

func (s *store) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (e *env) openStore() (*store, error) {
	db, err := repository.InitDB(&e.cfg.Database, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &store{
		db:      db,
		apps:    repository.NewAppRepository(db, e.logger),
		restore: repository.NewRestorePointRepository(db),
	}, nil
}

// login 校验登录信息并登录市场
func (e *env) login(ctx context.Context) (market.Client, error) {
	if err := e.cfg.Market.ValidateCredentials(); err != nil {
		return nil, err
	}

	fmt.Fprintln(e.out, "logging in to the app store")
	client := market.NewHTTPClient(e.cfg.Market, e.logger)
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return client, nil
}

// newRunner client 为 nil 时只能分析已有文件
func (e *env) newRunner(client market.Client, apps repository.AppRepository) *worker.Runner {
	a := analyzer.NewScriptAnalyzer(e.cfg.Analyzer, e.logger)
	return worker.NewRunner(client, a, apps, e.cfg.AppDir, e.cfg.Worker.MaxRetries, e.logger)
}

func (e *env) reportOptions() report.Options {
	return report.Options{
		TopSize:         e.cfg.Report.TopSize,
		CategoryTopSize: e.cfg.Report.CategoryTopSize,
	}
}

// addMarketFlags 登录和浏览范围参数
func (e *env) addMarketFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("android-id", "i", "", "your android ID number")
	f.StringP("user", "u", "", "username for logging into the store")
	f.StringP("password", "p", "", "password for logging into the store")
	f.StringP("token", "t", "", "access token for accessing the store")

	e.bind(cmd, "android-id", "market.android_id")
	e.bind(cmd, "user", "market.email")
	e.bind(cmd, "password", "market.password")
	e.bind(cmd, "token", "market.token")
}

func (e *env) addBrowseFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("category", "all", "category to fetch apps from")
	f.String("subcategory", "all", "subcategory to fetch apps from")
	f.Int("limit", 500, "the total number of apps to fetch from each category/subcategory")
	f.Int("offset", 0, "the offset from where to fetch apps in each category/subcategory")

	e.bind(cmd, "category", "market.category")
	e.bind(cmd, "subcategory", "market.subcategory")
	e.bind(cmd, "limit", "market.limit")
	e.bind(cmd, "offset", "market.offset")
}

func (e *env) addProcessFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("restore-freq", 10, "how often to create restore point when analyzing apps, use 0 to skip")
	f.String("app-dir", "apps/", "directory where apps will be stored during download and analytics")
	f.Int("workers", 4, "number of apps downloaded and analyzed concurrently")

	e.bind(cmd, "restore-freq", "worker.restore_freq")
	e.bind(cmd, "app-dir", "app_dir")
	e.bind(cmd, "workers", "worker.concurrency")
}

func (e *env) addReportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("tex-dir", "tex/", "directory where LaTeX reports will be saved")
	f.String("stats-file", "stats.json", "file where the statistics snapshot will be saved")

	e.bind(cmd, "tex-dir", "report.tex_dir")
	e.bind(cmd, "stats-file", "report.stats_file")
}
