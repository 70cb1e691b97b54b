package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobMessage 一个待分析应用的消息
type JobMessage struct {
	JobID      string    `json:"job_id"`
	AppID      string    `json:"app_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Publisher 消息发布接口（RabbitMQ 实现）
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Producer 消息生产者
type Producer struct {
	pub    Publisher
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(pub Publisher, logger *logrus.Logger) *Producer {
	return &Producer{
		pub:    pub,
		logger: logger,
	}
}

// PublishApp 为一个应用发布分析任务
func (p *Producer) PublishApp(ctx context.Context, appID string) (*JobMessage, error) {
	msg := &JobMessage{
		JobID:      uuid.NewString(),
		AppID:      appID,
		EnqueuedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.pub.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("app_id", appID).Error("Failed to publish job")
		return nil, fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"job_id": msg.JobID,
		"app_id": appID,
	}).Debug("Job published to queue")
	return msg, nil
}

// PublishPending 为所有待分析应用发布任务，返回发布数量
func (p *Producer) PublishPending(ctx context.Context, apps repository.AppRepository) (int, error) {
	pending, err := apps.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending apps: %w", err)
	}
	p.logger.Infof("found %d apps to process", len(pending))

	for i, app := range pending {
		if _, err := p.PublishApp(ctx, app.ID); err != nil {
			return i, err
		}
	}

	p.logger.WithField("published", len(pending)).Info("Pending apps published")
	return len(pending), nil
}
