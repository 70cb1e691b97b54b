package handlers

import (
	"net/http"

	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsHandler 统计与报表处理器
type StatsHandler struct {
	statsService service.StatsService
	logger       *logrus.Logger
}

// NewStatsHandler 创建统计处理器实例
func NewStatsHandler(statsService service.StatsService, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// GetStats 重新聚合并返回统计快照
// GET /api/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	snap, err := h.statsService.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build statistics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to build statistics",
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// ListTables 报表中全部表格的名称
// GET /api/tables
func (h *StatsHandler) ListTables(c *gin.Context) {
	r, err := h.statsService.Report(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to build report",
		})
		return
	}

	names := r.TableNames()
	c.JSON(http.StatusOK, gin.H{
		"tables": names,
		"total":  len(names),
	})
}

// GetTable 返回单个报表表格
// GET /api/tables/:name
func (h *StatsHandler) GetTable(c *gin.Context) {
	name := c.Param("name")

	r, err := h.statsService.Report(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).WithField("table", name).Error("Failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to build report",
		})
		return
	}

	t, ok := r.Table(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "table not found",
		})
		return
	}

	c.JSON(http.StatusOK, t)
}
