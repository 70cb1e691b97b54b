package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/sirupsen/logrus"
)

// AnalyzeFunc 分析磁盘上的 APK 并保存结果（worker.Runner.AnalyzeFile）
type AnalyzeFunc func(ctx context.Context, app *domain.AppRecord, path string) error

// InboxHandler 处理收件箱中的 <docid>.apk：查找对应记录、分析、成功后删除文件
type InboxHandler struct {
	apps     repository.AppRepository
	analyze  AnalyzeFunc
	keepFile bool
	logger   *logrus.Logger
}

// NewInboxHandler 创建收件箱处理器；keepFile 为 true 时分析后保留文件
func NewInboxHandler(apps repository.AppRepository, analyze AnalyzeFunc, keepFile bool, logger *logrus.Logger) *InboxHandler {
	return &InboxHandler{
		apps:     apps,
		analyze:  analyze,
		keepFile: keepFile,
		logger:   logger,
	}
}

// AppID 从文件名取出应用 ID
func AppID(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Handle 实现 FileHandler；未知 ID 只记录告警，不返回错误
func (h *InboxHandler) Handle(ctx context.Context, path string) error {
	appID := AppID(path)
	log := h.logger.WithFields(logrus.Fields{
		"app_id": appID,
		"file":   filepath.Base(path),
	})

	app, err := h.apps.FindByID(ctx, appID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("No app record for inbox file, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find app %s: %w", appID, err)
	}

	if err := h.analyze(ctx, app, path); err != nil {
		return err
	}
	log.WithField("classification", classificationOf(app)).Info("Inbox app analyzed")

	if h.keepFile {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to remove analyzed file")
	}
	return nil
}

func classificationOf(app *domain.AppRecord) string {
	class, ok := stats.Classify(app)
	if !ok {
		return "unchecked"
	}
	return string(class)
}
