package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/progress"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/sirupsen/logrus"
)

// RunResult 一次处理的统计
type RunResult struct {
	Pending  int `json:"pending"`
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
	// Resumed 恢复点位置，0 表示从头开始
	Resumed int `json:"resumed"`
}

// Processor 批量处理待分析应用，支持恢复点
type Processor struct {
	runner      *Runner
	apps        repository.AppRepository
	restore     repository.RestorePointRepository
	concurrency int
	queueSize   int
	restoreFreq int
	progress    progress.Func
	logger      *logrus.Logger
}

// NewProcessor 创建 Processor
func NewProcessor(
	runner *Runner,
	apps repository.AppRepository,
	restore repository.RestorePointRepository,
	cfg config.WorkerConfig,
	logger *logrus.Logger,
) *Processor {
	return &Processor{
		runner:      runner,
		apps:        apps,
		restore:     restore,
		concurrency: cfg.Concurrency,
		queueSize:   cfg.QueueSize,
		restoreFreq: cfg.RestoreFreq,
		progress:    progress.Nop,
		logger:      logger,
	}
}

// OnProgress 设置进度回调
func (p *Processor) OnProgress(fn progress.Func) {
	if fn == nil {
		fn = progress.Nop
	}
	p.progress = fn
}

// Run 处理所有待分析应用。ctx 取消时保存恢复点并返回 ctx 的错误。
func (p *Processor) Run(ctx context.Context) (*RunResult, error) {
	candidates, err := p.apps.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	pos, err := p.restore.Get(ctx, domain.RestorePointAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to read restore point: %w", err)
	}
	if pos > len(candidates) {
		pos = len(candidates)
	}

	tasks := make([]*Task, 0, len(candidates)-pos)
	for i := pos; i < len(candidates); i++ {
		if app := candidates[i]; app.ShouldProcess() {
			tasks = append(tasks, &Task{ID: app.ID, App: app, Index: i})
		}
	}

	result := &RunResult{Pending: len(tasks), Resumed: pos}
	p.logger.WithFields(logrus.Fields{
		"pending":    len(tasks),
		"candidates": len(candidates),
	}).Infof("found %d apps to process", len(tasks))
	if pos > 0 {
		p.logger.WithField("position", pos).Info("Resuming from restore point")
	}

	mark := newWatermark(tasks, len(candidates))
	var mu sync.Mutex
	done := 0

	pool := NewPool(p.concurrency, p.queueSize, func(ctx context.Context, task *Task) error {
		return p.runner.Process(ctx, task.App)
	}, p.logger)

	pool.OnDone(func(task *Task, err error) {
		// 被取消的任务不算完成，恢复后会重新处理
		if err != nil && ctx.Err() != nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			result.Failed++
		} else {
			result.Analyzed++
		}
		mark.complete(task)
		done++
		p.progress(done, len(tasks), task.ID)

		if p.restoreFreq > 0 && done%p.restoreFreq == 0 {
			p.saveRestorePoint(ctx, mark.position())
		}
	})

	pool.Start(ctx)
	for _, task := range tasks {
		if err := pool.Enqueue(ctx, task); err != nil {
			break
		}
	}
	pool.Stop()

	if err := ctx.Err(); err != nil {
		mu.Lock()
		p.saveRestorePoint(ctx, mark.position())
		mu.Unlock()
		p.logger.WithFields(logrus.Fields{
			"analyzed": result.Analyzed,
			"failed":   result.Failed,
		}).Warn("Processing interrupted")
		return result, err
	}

	if err := p.restore.Clear(ctx, domain.RestorePointAnalyzer); err != nil {
		p.logger.WithError(err).Warn("Failed to clear restore point")
	}
	p.removeAppDir()

	p.logger.WithFields(logrus.Fields{
		"analyzed": result.Analyzed,
		"failed":   result.Failed,
	}).Info("done processing apps")
	return result, nil
}

func (p *Processor) saveRestorePoint(ctx context.Context, pos int) {
	// 中断时 ctx 已取消，恢复点仍需写入
	if err := p.restore.Save(context.WithoutCancel(ctx), domain.RestorePointAnalyzer, pos); err != nil {
		p.logger.WithError(err).Warn("Failed to save restore point")
		return
	}
	p.logger.WithField("position", pos).Debug("Restore point saved")
}

// removeAppDir 删除下载目录（仅当为空）
func (p *Processor) removeAppDir() {
	dir := p.runner.AppDir()
	if dir == "" {
		return
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WithError(err).WithField("dir", dir).Debug("App dir not removed")
	}
}

// watermark 连续完成的位置：该位置之前的候选全部处理完毕
type watermark struct {
	tasks []*Task
	index map[*Task]int
	done  []bool
	next  int
	end   int
}

func newWatermark(tasks []*Task, end int) *watermark {
	index := make(map[*Task]int, len(tasks))
	for i, t := range tasks {
		index[t] = i
	}
	return &watermark{
		tasks: tasks,
		index: index,
		done:  make([]bool, len(tasks)),
		end:   end,
	}
}

func (w *watermark) complete(task *Task) {
	if i, ok := w.index[task]; ok {
		w.done[i] = true
	}
	for w.next < len(w.done) && w.done[w.next] {
		w.next++
	}
}

// position 第一个未完成任务在候选序列中的位置；全部完成时为序列长度
func (w *watermark) position() int {
	if w.next < len(w.tasks) {
		return w.tasks[w.next].Index
	}
	return w.end
}
