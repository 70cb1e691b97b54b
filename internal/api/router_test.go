package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/middleware"
	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := config.NewNopLogger()

	db, err := repository.InitDB(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	apps := repository.NewAppRepository(db, logger)
	ctx := context.Background()
	require.NoError(t, apps.Upsert(ctx, &domain.AppRecord{
		ID: "com.example.game", Title: "Game", Price: domain.PriceFree, RequiresInternet: true,
		Categories: []domain.AppCategory{{Category: "GAME", Subcategory: "apps_topselling_free"}},
	}))
	require.NoError(t, apps.SaveFindings(ctx, "com.example.game", domain.Findings{InsecureFactories: 1}))

	metrics := middleware.NewMetrics(logger, "")
	svc := service.NewStatsService(apps, report.DefaultOptions(), metrics, logger)
	mon := middleware.NewMemoryMonitor(logger, metrics, time.Hour)

	cfg := &config.Config{Server: config.ServerConfig{Mode: "debug", Token: token}}
	return SetupRouter(cfg, logger, svc, metrics, nil, mon)
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Endpoints(t *testing.T) {
	r := setupRouter(t, "")

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/api/health", wantCode: http.StatusOK, contains: `"status":"ok"`},
		{path: "/api/stats", wantCode: http.StatusOK, contains: `"GAME"`},
		{path: "/api/tables", wantCode: http.StatusOK, contains: `"internet"`},
		{path: "/api/tables/bad", wantCode: http.StatusOK, contains: `"Game"`},
		{path: "/api/tables/nope", wantCode: http.StatusNotFound, contains: "table not found"},
		{path: "/api/apps/com.example.game", wantCode: http.StatusOK, contains: `"classification":"bad"`},
		{path: "/api/apps/unknown", wantCode: http.StatusNotFound, contains: "app not found"},
		{path: "/api/debug/memory", wantCode: http.StatusOK, contains: `"goroutines"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(r, tt.path, "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestRouter_PrometheusAfterStats(t *testing.T) {
	r := setupRouter(t, "")

	require.Equal(t, http.StatusOK, get(r, "/api/stats", "").Code)

	w := get(r, "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hermes_apps_total 1")
	assert.Contains(t, w.Body.String(), `hermes_apps_classified{classification="bad"} 1`)
	assert.Contains(t, w.Body.String(), `hermes_http_requests_total{method="GET",path="/api/stats",status="200"} 1`)
}

func TestRouter_TokenAuth(t *testing.T) {
	r := setupRouter(t, "secret")

	assert.Equal(t, http.StatusOK, get(r, "/api/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/stats", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/stats", "secret").Code)
}
