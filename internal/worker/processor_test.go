package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/market"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMarket 只实现下载，其余方法不会被调用
type fakeMarket struct {
	market.Client

	mu        sync.Mutex
	failures  map[string]error
	flaky     map[string]int
	downloads []string
}

func (m *fakeMarket) Download(ctx context.Context, docID string, versionCode, offerType int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, docID)

	if err, ok := m.failures[docID]; ok {
		return nil, err
	}
	if m.flaky[docID] > 0 {
		m.flaky[docID]--
		return nil, retry.NewRetryableError(errors.New("gateway busy"))
	}
	return io.NopCloser(bytes.NewReader(apkBytes())), nil
}

func (m *fakeMarket) count(docID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.downloads {
		if id == docID {
			n++
		}
	}
	return n
}

type analyzerFunc func(ctx context.Context, path string) (*domain.Findings, error)

func (f analyzerFunc) Analyze(ctx context.Context, path string) (*domain.Findings, error) {
	return f(ctx, path)
}

// fakeMetrics 记录业务指标调用
type fakeMetrics struct {
	mu        sync.Mutex
	processed map[string]int
	downloads int
	analyses  int
}

func (m *fakeMetrics) RecordAppProcessed(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[result]++
}

func (m *fakeMetrics) ObserveDownload(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
}

func (m *fakeMetrics) ObserveAnalysis(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses++
}

func apkBytes() []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("classes.dex")
	w.Write([]byte("dex\n035"))
	zw.Close()
	return buf.Bytes()
}

// okAnalyzer 确认文件存在后返回固定结果
func okAnalyzer(t *testing.T) analyzerFunc {
	return func(ctx context.Context, path string) (*domain.Findings, error) {
		_, err := os.Stat(path)
		require.NoError(t, err, "apk should exist while analyzing")
		return &domain.Findings{TrustManagers: 1, NaiveTrustManagers: 1}, nil
	}
}

type fixture struct {
	apps    repository.AppRepository
	restore repository.RestorePointRepository
	market  *fakeMarket
	appDir  string
}

func setupFixture(t *testing.T, ids ...string) *fixture {
	db, err := repository.InitDB(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"}, config.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		apps:    repository.NewAppRepository(db, config.NewNopLogger()),
		restore: repository.NewRestorePointRepository(db),
		market:  &fakeMarket{failures: map[string]error{}, flaky: map[string]int{}},
		appDir:  filepath.Join(t.TempDir(), "apps"),
	}

	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, f.apps.Upsert(ctx, &domain.AppRecord{
			ID:               id,
			Title:            id,
			Price:            domain.PriceFree,
			RequiresInternet: true,
		}))
	}
	return f
}

func (f *fixture) runner(a analyzerFunc) *Runner {
	r := NewRunner(f.market, a, f.apps, f.appDir, 3, config.NewNopLogger())
	cfg := retry.NewConfig(3, config.NewNopLogger())
	cfg.InitialInterval = time.Millisecond
	return r.WithRetry(cfg)
}

func (f *fixture) processor(r *Runner, concurrency, freq int) *Processor {
	return NewProcessor(r, f.apps, f.restore, config.WorkerConfig{
		Concurrency: concurrency,
		RestoreFreq: freq,
	}, config.NewNopLogger())
}

// TestProcessor_Run 测试完整处理流程
func TestProcessor_Run(t *testing.T) {
	f := setupFixture(t, "a.app", "b.app", "c.app", "d.done")
	ctx := context.Background()

	require.NoError(t, f.apps.SaveFindings(ctx, "d.done", domain.Findings{}))
	paid := &domain.AppRecord{ID: "e.paid", Price: "$1.99", RequiresInternet: true}
	require.NoError(t, f.apps.Upsert(ctx, paid))
	f.market.failures["b.app"] = retry.NewNonRetryableError(errors.New("not found"))

	metrics := &fakeMetrics{processed: map[string]int{}}
	p := f.processor(f.runner(okAnalyzer(t)).WithMetrics(metrics), 2, 1)

	var mu sync.Mutex
	var seen []string
	p.OnProgress(func(done, total int, item string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		seen = append(seen, item)
	})

	result, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pending)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 1, result.Failed)
	assert.ElementsMatch(t, []string{"a.app", "b.app", "c.app"}, seen)

	a, err := f.apps.FindByID(ctx, "a.app")
	require.NoError(t, err)
	assert.True(t, a.Analyzed)
	assert.Equal(t, 1, a.Findings.NaiveTrustManagers)

	b, err := f.apps.FindByID(ctx, "b.app")
	require.NoError(t, err)
	assert.False(t, b.Analyzed)
	assert.Contains(t, b.AnalysisError, "not found")

	// 已分析和付费应用不会下载
	assert.Zero(t, f.market.count("d.done"))
	assert.Zero(t, f.market.count("e.paid"))

	pos, err := f.restore.Get(ctx, domain.RestorePointAnalyzer)
	require.NoError(t, err)
	assert.Zero(t, pos, "restore point cleared after completion")

	_, err = os.Stat(f.appDir)
	assert.True(t, os.IsNotExist(err), "empty app dir removed")

	assert.Equal(t, 2, metrics.processed[ResultAnalyzed])
	assert.Equal(t, 1, metrics.processed[ResultFailed])
	assert.Equal(t, 3, metrics.downloads)
	assert.Equal(t, 2, metrics.analyses)
}

// TestProcessor_Resume 测试从恢复点继续
func TestProcessor_Resume(t *testing.T) {
	f := setupFixture(t, "a.app", "b.app", "c.app", "d.app")
	ctx := context.Background()

	require.NoError(t, f.restore.Save(ctx, domain.RestorePointAnalyzer, 2))

	result, err := f.processor(f.runner(okAnalyzer(t)), 1, 10).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Resumed)
	assert.Equal(t, 2, result.Pending)
	assert.Zero(t, f.market.count("a.app"))
	assert.Zero(t, f.market.count("b.app"))
	assert.Equal(t, 1, f.market.count("c.app"))
	assert.Equal(t, 1, f.market.count("d.app"))

	// 恢复点超过候选数量时不处理任何应用
	require.NoError(t, f.restore.Save(ctx, domain.RestorePointAnalyzer, 99))
	result, err = f.processor(f.runner(okAnalyzer(t)), 1, 10).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Pending)
}

// TestProcessor_Interrupted 测试中断时保存连续完成的位置
func TestProcessor_Interrupted(t *testing.T) {
	f := setupFixture(t, "a.app", "b.app", "c.app")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	analyzer := analyzerFunc(func(ctx context.Context, path string) (*domain.Findings, error) {
		if filepath.Base(path) == "b.app.apk" {
			cancel()
			return nil, ctx.Err()
		}
		return &domain.Findings{}, nil
	})

	result, err := f.processor(f.runner(analyzer), 1, 0).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Analyzed)
	assert.Zero(t, result.Failed)

	pos, err := f.restore.Get(context.Background(), domain.RestorePointAnalyzer)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// 被中断的应用没有记录失败
	b, err := f.apps.FindByID(context.Background(), "b.app")
	require.NoError(t, err)
	assert.Empty(t, b.AnalysisError)

	// 再次运行从 b.app 开始
	result, err = f.processor(f.runner(okAnalyzer(t)), 1, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resumed)
	assert.Equal(t, 2, result.Pending)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 1, f.market.count("a.app"))
}

// TestRunner_RetriesDownload 测试下载的可重试错误
func TestRunner_RetriesDownload(t *testing.T) {
	f := setupFixture(t, "a.app", "b.app")
	ctx := context.Background()
	f.market.flaky["a.app"] = 2
	f.market.flaky["b.app"] = 5

	r := f.runner(okAnalyzer(t))

	a, err := f.apps.FindByID(ctx, "a.app")
	require.NoError(t, err)
	require.NoError(t, r.Process(ctx, a))
	assert.Equal(t, 3, f.market.count("a.app"))
	assert.True(t, a.Analyzed)

	b, err := f.apps.FindByID(ctx, "b.app")
	require.NoError(t, err)
	err = r.Process(ctx, b)
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err), "exhausted retries stay retryable for the queue")
	assert.Equal(t, 3, f.market.count("b.app"))

	_, err = os.Stat(filepath.Join(f.appDir, "a.app.apk"))
	assert.True(t, os.IsNotExist(err), "apk removed after analysis")
}

// TestRunner_AnalyzeFile 测试分析已有文件
func TestRunner_AnalyzeFile(t *testing.T) {
	f := setupFixture(t, "a.app")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "a.app.apk")
	require.NoError(t, os.WriteFile(path, apkBytes(), 0o644))

	app, err := f.apps.FindByID(ctx, "a.app")
	require.NoError(t, err)

	failing := analyzerFunc(func(context.Context, string) (*domain.Findings, error) {
		return nil, retry.NewNonRetryableError(errors.New("broken dex"))
	})
	err = f.runner(failing).AnalyzeFile(ctx, app, path)
	require.Error(t, err)
	assert.False(t, retry.IsRetryable(err))

	require.NoError(t, f.runner(okAnalyzer(t)).AnalyzeFile(ctx, app, path))
	found, err := f.apps.FindByID(ctx, "a.app")
	require.NoError(t, err)
	assert.True(t, found.Analyzed)
	assert.Empty(t, found.AnalysisError)

	_, err = os.Stat(path)
	assert.NoError(t, err, "file kept")
	assert.Zero(t, f.market.count("a.app"))
}

// TestPool 测试 Worker 池
func TestPool(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})

	pool := NewPool(1, 1, func(ctx context.Context, task *Task) error {
		if task.ID == "block" {
			<-release
		}
		if task.ID == "bad" {
			return errors.New("bad task")
		}
		return nil
	}, config.NewNopLogger())

	var mu sync.Mutex
	var finished []string
	pool.OnDone(func(task *Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, task.ID)
	})
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(ctx, &Task{ID: "block"}))
	// 等待 worker 取走 block，再填满队列
	require.Eventually(t, func() bool { return pool.GetQueueSize() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(&Task{ID: "queued"}))
	assert.EqualError(t, pool.Submit(&Task{ID: "overflow"}), "task queue is full")

	close(release)
	assert.EqualError(t, pool.SubmitAndWait(ctx, &Task{ID: "bad"}), "bad task")
	pool.Stop()

	assert.Equal(t, []string{"block", "queued", "bad"}, finished)
}

// TestWatermark 测试乱序完成时的连续位置
func TestWatermark(t *testing.T) {
	tasks := []*Task{{ID: "a", Index: 1}, {ID: "b", Index: 3}, {ID: "c", Index: 4}}
	w := newWatermark(tasks, 6)

	assert.Equal(t, 1, w.position())
	w.complete(tasks[1])
	assert.Equal(t, 1, w.position())
	w.complete(tasks[0])
	assert.Equal(t, 4, w.position())
	w.complete(tasks[2])
	assert.Equal(t, 6, w.position())
}
