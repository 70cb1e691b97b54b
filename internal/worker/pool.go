package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// Pool Worker 池
type Pool struct {
	workers  int
	taskChan chan *Task
	handler  Handler
	onDone   func(task *Task, err error)
	logger   *logrus.Logger
	wg       sync.WaitGroup
}

// Task 任务
type Task struct {
	ID  string
	App *domain.AppRecord
	// Index 应用在候选序列中的位置
	Index    int
	resultCh chan error // 用于同步等待任务完成
}

// Handler 执行单个任务
type Handler func(ctx context.Context, task *Task) error

// NewPool 创建 Worker 池
func NewPool(workers, queueSize int, handler Handler, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers:  workers,
		taskChan: make(chan *Task, queueSize),
		handler:  handler,
		logger:   logger,
	}
}

// OnDone 每个任务结束后回调（在 worker 协程中调用）
func (p *Pool) OnDone(fn func(task *Task, err error)) {
	p.onDone = fn
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Debug("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Debug("Worker shutting down")
			return

		case task, ok := <-p.taskChan:
			if !ok {
				return
			}

			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"task_id":   task.ID,
			}).Debug("Processing task")

			err := p.handler(ctx, task)
			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"task_id":   task.ID,
				}).Debug("Task failed")
			}

			if p.onDone != nil {
				p.onDone(task, err)
			}

			// 如果有结果通道，发送结果
			if task.resultCh != nil {
				task.resultCh <- err
				close(task.resultCh)
			}
		}
	}
}

// Submit 提交任务（异步，不等待结果，队列满时返回错误）
func (p *Pool) Submit(task *Task) error {
	select {
	case p.taskChan <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Enqueue 提交任务，队列满时阻塞直到有空位或 ctx 取消
func (p *Pool) Enqueue(ctx context.Context, task *Task) error {
	select {
	case p.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAndWait 提交任务并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, task *Task) error {
	task.resultCh = make(chan error, 1)

	if err := p.Enqueue(ctx, task); err != nil {
		return err
	}

	select {
	case err := <-task.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止接收任务并等待 worker 退出
func (p *Pool) Stop() {
	close(p.taskChan)
	p.wg.Wait()
	p.logger.Debug("Worker pool stopped")
}

// GetQueueSize 获取队列中任务数
func (p *Pool) GetQueueSize() int {
	return len(p.taskChan)
}
