package api

import (
	"net/http"

	"github.com/apk-analysis/hermes-go/internal/api/handlers"
	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/middleware"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Version 由 cmd 在启动时设置，健康检查中返回
var Version = "dev"

// SetupRouter 注册全部路由；metrics、hub 和 memMonitor 可以为 nil
func SetupRouter(cfg *config.Config, logger *logrus.Logger, statsService service.StatsService, metrics *middleware.Metrics, hub *progress.Hub, memMonitor *middleware.MemoryMonitor) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())

	// Prometheus 监控中间件
	if metrics != nil {
		r.Use(metrics.HTTPMiddleware())
		r.GET("/metrics/prometheus", metrics.Handler())
	}

	// 进度推送
	if hub != nil {
		r.GET("/ws/progress", gin.WrapF(hub.ServeWS))
	}

	// 初始化处理器
	statsHandler := handlers.NewStatsHandler(statsService, logger)
	appHandler := handlers.NewAppHandler(statsService, logger)

	// 健康检查（无需认证）
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	v1 := r.Group("/api")
	v1.Use(middleware.TokenAuth(cfg.Server.Token))
	{
		v1.GET("/stats", statsHandler.GetStats)
		v1.GET("/tables", statsHandler.ListTables)
		v1.GET("/tables/:name", statsHandler.GetTable)
		v1.GET("/apps/:id", appHandler.GetApp)

		if memMonitor != nil {
			v1.GET("/debug/memory", memMonitor.Endpoint())
		}
	}

	return r
}
