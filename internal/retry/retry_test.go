package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *Config {
	cfg := NewConfig(attempts, nil)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return cfg
}

// TestDo_Success 测试第一次就成功
func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

// TestDo_SuccessAfterRetries 测试重试后成功
func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

// TestDo_MaxAttemptsReached 测试达到最大尝试次数
func TestDo_MaxAttemptsReached(t *testing.T) {
	attempts := 0
	persistent := errors.New("persistent error")
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return persistent
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, persistent)
	assert.Contains(t, err.Error(), "max attempts")
}

// TestDo_NonRetryable 测试不可重试错误立即返回
func TestDo_NonRetryable(t *testing.T) {
	attempts := 0
	cause := errors.New("corrupt apk")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return NewNonRetryableError(cause)
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetryable(err))
}

// TestDo_ContextCanceled 测试上下文取消
func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

// TestDoWithResult 测试返回结果
func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("once")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, err = DoWithResult(context.Background(), fastConfig(2), func(ctx context.Context) (int, error) {
		return 0, errors.New("always")
	})
	assert.Error(t, err)
}

// TestIsRetryable 测试默认分类
func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("network")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(NewRetryableError(context.Canceled)))
	assert.False(t, IsRetryable(NewNonRetryableError(errors.New("x"))))
}

// TestFromStatus 测试按状态码分类
func TestFromStatus(t *testing.T) {
	assert.True(t, IsRetryable(FromStatus(http.StatusServiceUnavailable, nil)))
	assert.True(t, IsRetryable(FromStatus(http.StatusTooManyRequests, nil)))
	assert.False(t, IsRetryable(FromStatus(http.StatusNotFound, nil)))
	assert.False(t, IsRetryable(FromStatus(http.StatusUnauthorized, errors.New("bad token"))))
	assert.Contains(t, FromStatus(http.StatusBadGateway, nil).Error(), "502")
}

// TestNextInterval 测试退避间隔
func TestNextInterval(t *testing.T) {
	initial := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, initial, nextInterval(StrategyFixed, initial, max, 3))
	assert.Equal(t, 300*time.Millisecond, nextInterval(StrategyLinear, initial, max, 3))
	assert.Equal(t, 400*time.Millisecond, nextInterval(StrategyExponential, initial, max, 3))
	assert.Equal(t, max, nextInterval(StrategyExponential, initial, max, 8))
}
