package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/report"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute 在隔离的工作目录里执行命令
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HERMES_DATABASE_PATH", filepath.Join(dir, "hermes.db"))
	t.Setenv("HERMES_REPORT_TEX_DIR", filepath.Join(dir, "tex"))
	t.Setenv("HERMES_REPORT_STATS_FILE", filepath.Join(dir, "stats.json"))
	t.Setenv("HERMES_LOG_LEVEL", "error")

	root := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-01"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seed 往命令将使用的数据库写入应用
func seed(t *testing.T, apps ...*domain.AppRecord) {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{Type: "sqlite", Path: os.Getenv("HERMES_DATABASE_PATH")}, config.NewNopLogger())
	require.NoError(t, err)
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	repo := repository.NewAppRepository(db, config.NewNopLogger())
	for _, app := range apps {
		require.NoError(t, repo.Upsert(context.Background(), app))
		if app.Analyzed {
			require.NoError(t, repo.SaveFindings(context.Background(), app.ID, app.Findings))
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hermes 1.2.3 (commit: abc123, built: 2026-01-01)\n", out)
}

func TestRun_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no credentials", args: []string{"run", "-i", "1234"}, want: "you need to specify user/pass or token"},
		{name: "user without password", args: []string{"run", "-u", "me@example.com", "-i", "1234"}, want: "you need to specify user/pass or token"},
		{name: "no android id", args: []string{"run", "-t", "tok"}, want: "you need to specify your android id"},
		{name: "skip everything", args: []string{"run", "-D", "-G", "-P"}, want: "what's the point if you skip everything?"},
		{name: "bad limit", args: []string{"run", "-D", "--limit", "0"}, want: "market.limit cannot be less than one"},
		{name: "bad offset", args: []string{"run", "-D", "--offset", "-1"}, want: "market.offset cannot be less than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_NoApps(t *testing.T) {
	_, err := execute(t, "run", "-D", "-G")
	assert.ErrorIs(t, err, ErrNoApps)
}

func TestRun_ReportOnly(t *testing.T) {
	// 先确定数据库路径，再写入数据
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hermes.db")
	t.Setenv("HERMES_DATABASE_PATH", dbPath)
	seed(t,
		&domain.AppRecord{
			ID: "com.example.bad", Title: "Bad App", Creator: "Dev", Price: domain.PriceFree,
			RequiresInternet: true, Analyzed: true, Downloads: 5000,
			Findings:   domain.Findings{AllowAllHostnameVerifiers: 1},
			Categories: []domain.AppCategory{{Category: "GAME", Subcategory: "apps_topselling_free"}},
		},
		&domain.AppRecord{
			ID: "com.example.offline", Title: "Offline", Price: domain.PriceFree,
			Categories: []domain.AppCategory{{Category: "TOOLS", Subcategory: "apps_topselling_free"}},
		},
	)

	root := NewRootCommand(BuildInfo{Version: "test"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	texDir := filepath.Join(dir, "tex")
	statsFile := filepath.Join(dir, "stats.json")
	root.SetArgs([]string{"run", "-D", "--tex-dir", texDir, "--stats-file", statsFile})
	t.Setenv("HERMES_LOG_LEVEL", "error")

	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "generating output")
	assert.Contains(t, out.String(), "Internet permission")
	assert.Contains(t, out.String(), "Bad App")
	assert.FileExists(t, filepath.Join(texDir, "table_internet.tex"))
	assert.FileExists(t, filepath.Join(texDir, "graph_internet.tex"))

	snap, err := report.ReadStats(statsFile)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total.Total)
	assert.Equal(t, 1, snap.Total.Bad)
}

func TestReport_FromStats(t *testing.T) {
	dir := t.TempDir()
	statsFile := filepath.Join(dir, "saved.json")

	snap := stats.Aggregate([]*domain.AppRecord{{
		ID: "com.example.native", Title: "Native", RequiresInternet: true, Analyzed: true,
		Categories: []domain.AppCategory{{Category: "BOOKS_AND_REFERENCE"}},
	}})
	require.NoError(t, report.WriteStats(statsFile, snap))

	out, err := execute(t, "report", "-G", "--from-stats", statsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Books and Reference")
	assert.Contains(t, out, "100.00%")
}

func TestReport_SkipEverything(t *testing.T) {
	_, err := execute(t, "report", "-G", "-P")
	assert.ErrorIs(t, err, ErrNothingToDo)
}

func TestReport_NoPrinting(t *testing.T) {
	dir := t.TempDir()
	statsFile := filepath.Join(dir, "saved.json")
	snap := stats.Aggregate([]*domain.AppRecord{{ID: "a", Title: "A"}})
	require.NoError(t, report.WriteStats(statsFile, snap))

	out, err := execute(t, "report", "-P", "--from-stats", statsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "done")
	assert.NotContains(t, out, "Internet permission")
}

func TestFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("market:\n  limit: 20\n  token: from-file\nworker:\n  restore_freq: 3\n"), 0644))

	root, e := newRoot(BuildInfo{})
	cmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--limit", "7", "--config", cfgPath, "-D"}))

	require.NoError(t, e.setup(cmd, nil))
	assert.Equal(t, 7, e.cfg.Market.Limit)
	assert.Equal(t, "from-file", e.cfg.Market.Token)
	assert.Equal(t, 3, e.cfg.Worker.RestoreFreq)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HERMES_DATABASE_PATH", filepath.Join(dir, "src.db"))
	seed(t, &domain.AppRecord{ID: "com.example.a", Title: "A", Price: domain.PriceFree, RequiresInternet: true})

	cacheFile := filepath.Join(dir, "apps.jsonl")
	run := func(args ...string) string {
		root := NewRootCommand(BuildInfo{})
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(args)
		require.NoError(t, root.ExecuteContext(context.Background()))
		return out.String()
	}
	t.Setenv("HERMES_LOG_LEVEL", "error")

	assert.Contains(t, run("export", "-o", cacheFile), "saved 1 apps")

	t.Setenv("HERMES_DATABASE_PATH", filepath.Join(dir, "dst.db"))
	assert.Contains(t, run("import", cacheFile), "loaded 1 apps from cache")
}
