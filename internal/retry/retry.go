// Package retry 提供带退避的通用重试。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrExhausted 所有尝试都失败且错误仍可重试。
var ErrExhausted = errors.New("retries exhausted")

// Config 重试参数。
type Config struct {
	// MaxRetries 首次调用之外的最大重试次数。
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BackoffFactor 每次重试后的退避倍数，1 表示固定间隔。
	BackoffFactor float64
	Jitter        bool
}

// DefaultConfig 聚合器限频场景：固定 2s，共 3 次调用。
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  1,
	}
}

type IsRetryableFunc func(error) bool

// OnRetryFunc 在每次重试前调用，attempt 从 1 开始。
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do 执行 fn，直到成功、遇到不可重试错误或次数用尽。
// 用尽时返回的错误同时包装 ErrExhausted 与最后一次错误。
func Do[T any](ctx context.Context, cfg Config, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	backoff := cfg.InitialBackoff
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(backoff)))
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxRetries+1, lastErr)
}

// DoVoid 同 Do，用于无返回值的调用。
func DoVoid(ctx context.Context, cfg Config, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() error) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
