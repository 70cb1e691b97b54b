package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 退避策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Config 重试配置
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Strategy        Strategy
	Logger          logrus.FieldLogger
	// Fields 附加到每条重试日志上（例如 app_id）
	Fields logrus.Fields
}

// DefaultConfig 默认 3 次、指数退避，日志丢弃
func DefaultConfig() *Config {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	return &Config{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          silent,
	}
}

// NewConfig 指定尝试次数和日志器
func NewConfig(attempts int, logger logrus.FieldLogger) *Config {
	cfg := DefaultConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	if logger != nil {
		cfg.Logger = logger
	}
	return cfg
}

// WithFields 复制配置并附加日志字段
func (c *Config) WithFields(fields logrus.Fields) *Config {
	cp := *c
	cp.Fields = fields
	return &cp
}

// classifiedError 带是否可重试标记的错误
type classifiedError struct {
	err       error
	retryable bool
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

func (e *classifiedError) IsRetryable() bool { return e.retryable }

// NewRetryableError 标记为可重试
func NewRetryableError(err error) error {
	return &classifiedError{err: err, retryable: true}
}

// NewNonRetryableError 标记为不可重试
func NewNonRetryableError(err error) error {
	return &classifiedError{err: err, retryable: false}
}

// IsRetryable 判断错误是否可重试；未标记的错误默认可重试，context 取消和超时不重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified interface{ IsRetryable() bool }
	if errors.As(err, &classified) {
		return classified.IsRetryable()
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// FromStatus 按 HTTP 状态码分类：429 和 5xx 可重试，其余 4xx 不可重试
func FromStatus(code int, err error) error {
	if err == nil {
		err = fmt.Errorf("unexpected status %d", code)
	}
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return NewRetryableError(err)
	}
	return NewNonRetryableError(err)
}

// Func 可重试的函数
type Func func(ctx context.Context) error

// Do 执行带重试的操作
func Do(ctx context.Context, config *Config, fn Func) error {
	if config == nil {
		config = DefaultConfig()
	}
	log := config.Logger.WithFields(config.Fields)

	var lastErr error
	interval := config.InitialInterval

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithField("attempt", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			log.WithError(err).Debug("Error is not retryable, aborting")
			return err
		}

		if attempt >= config.MaxAttempts {
			break
		}

		interval = nextInterval(config.Strategy, config.InitialInterval, config.MaxInterval, attempt)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     config.MaxAttempts,
			"wait":    interval,
			"error":   err.Error(),
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry canceled during wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}

// nextInterval 计算第 attempt 次失败后的等待时间
func nextInterval(strategy Strategy, initial, max time.Duration, attempt int) time.Duration {
	var next time.Duration

	switch strategy {
	case StrategyLinear:
		next = initial * time.Duration(attempt)
	case StrategyExponential:
		next = initial * time.Duration(1<<(attempt-1))
	default:
		next = initial
	}

	if max > 0 && next > max {
		next = max
	}
	return next
}

// DoWithResult 执行带重试的操作并返回结果
func DoWithResult[T any](ctx context.Context, config *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, config, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}
