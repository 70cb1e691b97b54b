package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/apk-analysis/hermes-go/internal/retry"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// JobHandler 任务处理函数
type JobHandler func(ctx context.Context, msg *JobMessage) error

// AppHandler 把消息转换为应用记录后交给 process 处理；已分析的应用直接确认
func AppHandler(apps repository.AppRepository, process func(ctx context.Context, app *domain.AppRecord) error) JobHandler {
	return func(ctx context.Context, msg *JobMessage) error {
		app, err := apps.FindByID(ctx, msg.AppID)
		if errors.Is(err, repository.ErrNotFound) {
			return retry.NewNonRetryableError(fmt.Errorf("unknown app %s", msg.AppID))
		}
		if err != nil {
			return err
		}
		if !app.ShouldProcess() {
			return nil
		}
		return process(ctx, app)
	}
}

// Consumer 消息消费者
type Consumer struct {
	mq         *RabbitMQ
	handler    JobHandler
	workers    int
	logger     *logrus.Logger
	wg         sync.WaitGroup
	active     int32
	processed  int64
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler JobHandler, workers int, logger *logrus.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		mq:      mq,
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Start 启动消费者，并在断线后自动重连
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.startWorkers(ctx); err != nil {
		return err
	}
	c.mq.WatchConnection()
	go c.handleReconnect(ctx)
	return nil
}

func (c *Consumer) startWorkers(ctx context.Context) error {
	msgs, err := c.mq.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(workerCtx, i, msgs)
	}

	c.logger.WithFields(logrus.Fields{
		"workers": c.workers,
		"queue":   c.mq.QueueName(),
	}).Info("Consumer started")
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-msgs:
			if !ok {
				c.logger.WithField("worker_id", id).Warn("Message channel closed")
				return
			}
			atomic.AddInt32(&c.active, 1)
			c.processMessage(ctx, id, delivery)
			atomic.AddInt32(&c.active, -1)
		}
	}
}

// processMessage 处理单条消息：成功确认；可重试的失败重新入队一次；其余丢弃
func (c *Consumer) processMessage(ctx context.Context, workerID int, delivery amqp.Delivery) {
	start := time.Now()

	var msg JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.AppID == "" {
		c.logger.WithError(err).Error("Invalid job message")
		delivery.Nack(false, false)
		return
	}

	log := c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    msg.JobID,
		"app_id":    msg.AppID,
	})

	err := c.handler(ctx, &msg)
	atomic.AddInt64(&c.processed, 1)
	if err != nil {
		requeue := retry.IsRetryable(err) && !delivery.Redelivered && ctx.Err() == nil
		log.WithError(err).WithField("requeue", requeue).Warn("Job failed")
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			log.WithError(nackErr).Error("Failed to reject message")
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		log.WithError(err).Error("Failed to acknowledge message")
		return
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("Job completed")
}

func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.mq.ReconnectChan():
			c.logger.Warn("Connection lost, attempting to reconnect")
			c.stopWorkers()

			if err := c.mq.Reconnect(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect")
				continue
			}
			if err := c.startWorkers(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
		}
	}
}

// stopWorkers 取消 worker 并等待当前消息处理完（最多 30 秒）
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for workers to stop")
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.stopWorkers()
	c.logger.WithField("processed", c.Processed()).Info("Consumer stopped")
}

// ActiveWorkers 正在处理消息的 worker 数量
func (c *Consumer) ActiveWorkers() int {
	return int(atomic.LoadInt32(&c.active))
}

// Processed 已处理的消息数
func (c *Consumer) Processed() int64 {
	return atomic.LoadInt64(&c.processed)
}
