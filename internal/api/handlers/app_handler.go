package handlers

import (
	"errors"
	"net/http"

	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AppHandler 应用查询处理器
type AppHandler struct {
	statsService service.StatsService
	logger       *logrus.Logger
}

// NewAppHandler 创建应用处理器实例
func NewAppHandler(statsService service.StatsService, logger *logrus.Logger) *AppHandler {
	return &AppHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// GetApp 获取应用详情及其分类结果
// GET /api/apps/:id
func (h *AppHandler) GetApp(c *gin.Context) {
	appID := c.Param("id")

	app, err := h.statsService.GetApp(c.Request.Context(), appID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "app not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("app_id", appID).Error("Failed to get app")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get app",
		})
		return
	}

	resp := gin.H{
		"app":       app,
		"downloads": stats.FormatDownloads(app.Downloads),
	}
	if class, ok := stats.Classify(app); ok {
		resp["classification"] = class
		resp["classification_name"] = class.GetDisplayName()
	}
	c.JSON(http.StatusOK, resp)
}
