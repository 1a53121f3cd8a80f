package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 控制对同一个 API 的请求间隔，避免触发限流。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

var _ RateLimiter = (*rate.Limiter)(nil)

// NewIntervalLimiter 两次请求之间至少间隔 interval；interval<=0 不限速。
func NewIntervalLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
