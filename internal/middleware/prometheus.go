package middleware

import (
	"strconv"
	"time"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics Prometheus 指标收集器，每个实例使用独立的 Registry
type Metrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 处理指标
	appsProcessedTotal *prometheus.CounterVec
	downloadDuration   prometheus.Histogram
	analysisDuration   prometheus.Histogram
	workersActive      prometheus.Gauge

	// 统计快照
	appsTotal      prometheus.Gauge
	appsInternet   prometheus.Gauge
	appsUnchecked  prometheus.Gauge
	appsClassified *prometheus.GaugeVec

	// 系统指标
	memoryUsage     prometheus.Gauge
	goroutinesCount prometheus.Gauge
}

// NewMetrics 创建指标收集器
func NewMetrics(logger *logrus.Logger, namespace string) *Metrics {
	if namespace == "" {
		namespace = "hermes"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		logger:   logger,
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),

		appsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apps_processed_total",
				Help:      "Total number of processed apps by result",
			},
			[]string{"result"}, // analyzed, failed
		),
		downloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "APK download duration in seconds, including retries",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		analysisDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Static analysis duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		workersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_active",
				Help:      "Number of workers currently processing an app",
			},
		),

		appsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_total",
				Help:      "Number of apps in the latest statistics snapshot",
			},
		),
		appsInternet: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_internet",
				Help:      "Number of apps requesting the internet permission",
			},
		),
		appsUnchecked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_unchecked",
				Help:      "Number of internet apps not analyzed yet",
			},
		),
		appsClassified: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_classified",
				Help:      "Number of analyzed apps by certificate validation class",
			},
			[]string{"classification"},
		),

		memoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		goroutinesCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_count",
				Help:      "Current number of goroutines",
			},
		),
	}

	logger.Debug("Prometheus metrics initialized")
	return m
}

// Registry 指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPMiddleware HTTP 请求监控中间件
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppProcessed 记录应用处理结果
func (m *Metrics) RecordAppProcessed(result string) {
	m.appsProcessedTotal.WithLabelValues(result).Inc()
}

// ObserveDownload 记录下载耗时
func (m *Metrics) ObserveDownload(d time.Duration) {
	m.downloadDuration.Observe(d.Seconds())
}

// ObserveAnalysis 记录分析耗时
func (m *Metrics) ObserveAnalysis(d time.Duration) {
	m.analysisDuration.Observe(d.Seconds())
}

// SetActiveWorkers 更新正在工作的 worker 数量
func (m *Metrics) SetActiveWorkers(n int) {
	m.workersActive.Set(float64(n))
}

// ObserveSnapshot 用最新的统计快照更新总量指标
func (m *Metrics) ObserveSnapshot(snap *stats.Snapshot) {
	total := &snap.Total
	m.appsTotal.Set(float64(total.Total))
	m.appsInternet.Set(float64(total.Internet))
	m.appsUnchecked.Set(float64(total.Unchecked))
	for _, c := range domain.Classifications {
		m.appsClassified.WithLabelValues(string(c)).Set(float64(total.Count(c)))
	}
}

// UpdateMemoryStats 更新内存统计
func (m *Metrics) UpdateMemoryStats(s MemoryStats) {
	m.memoryUsage.Set(float64(s.Alloc))
	m.goroutinesCount.Set(float64(s.Goroutines))
}
