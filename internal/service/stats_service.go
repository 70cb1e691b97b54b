package service

import (
	"context"
	"fmt"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/sirupsen/logrus"
)

// StatsService 统计服务接口
type StatsService interface {
	// 从全部应用重新聚合一次快照
	Snapshot(ctx context.Context) (*stats.Snapshot, error)

	// 基于新快照生成报表
	Report(ctx context.Context) (*report.Report, error)

	// 获取单个应用
	GetApp(ctx context.Context, appID string) (*domain.AppRecord, error)
}

// SnapshotObserver 快照生成后回调，例如更新 Prometheus 指标
type SnapshotObserver interface {
	ObserveSnapshot(snap *stats.Snapshot)
}

type statsService struct {
	apps     repository.AppRepository
	opts     report.Options
	observer SnapshotObserver
	logger   *logrus.Logger
}

// NewStatsService 创建统计服务实例；observer 可以为 nil
func NewStatsService(apps repository.AppRepository, opts report.Options, observer SnapshotObserver, logger *logrus.Logger) StatsService {
	return &statsService{
		apps:     apps,
		opts:     opts,
		observer: observer,
		logger:   logger,
	}
}

func (s *statsService) Snapshot(ctx context.Context) (*stats.Snapshot, error) {
	records, err := s.apps.FindAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load apps")
		return nil, fmt.Errorf("load apps: %w", err)
	}

	snap := stats.NewAggregator(s.logger).Aggregate(records)
	if s.observer != nil {
		s.observer.ObserveSnapshot(snap)
	}

	s.logger.WithField("apps", len(records)).Debug("Statistics snapshot generated")
	return snap, nil
}

func (s *statsService) Report(ctx context.Context) (*report.Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return report.Build(snap, s.opts), nil
}

func (s *statsService) GetApp(ctx context.Context, appID string) (*domain.AppRecord, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", appID, err)
	}
	return app, nil
}
