package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"arm-pricer-go/engine"
	"arm-pricer-go/gateway"
	"arm-pricer-go/internal/risk"
)

type pricer interface {
	Run(ctx context.Context, opts engine.PricingOptions) (engine.Decision, error)
}

// runner 串行执行定价，配置热更新只替换下一次运行的参数。
type runner struct {
	engine pricer
	logger *zap.Logger
	// forceDryRun 命令行 -dryRun，热更新不能关闭
	forceDryRun bool
	// afterRun 每次运行结束回调，用于 systemd watchdog
	afterRun func()
	// breaker 连续失败后暂停运行，nil 表示不熔断
	breaker *risk.CircuitBreaker

	mu   sync.RWMutex
	opts engine.PricingOptions
}

func (r *runner) options() engine.PricingOptions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts := r.opts
	if r.forceDryRun {
		opts.DryRun = true
	}
	return opts
}

func (r *runner) setOptions(opts engine.PricingOptions) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

func (r *runner) runOnce(ctx context.Context) error {
	d, err := r.engine.Run(ctx, r.options())
	if r.afterRun != nil {
		r.afterRun()
	}
	if err != nil {
		return err
	}
	r.logger.Info("pricing run done",
		zap.Bool("submitted", d.ShouldSubmit),
		zap.Bool("exceeded", d.Exceeded),
		zap.String("tx", d.TxHash))
	return nil
}

// loop 每个触发执行一次；运行期间到达的触发合并为一次，运行不会重叠。
// 单次失败只记录日志，等待下一次触发。
func (r *runner) loop(ctx context.Context, triggers <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
			r.step(ctx)
		}
	}
}

// step 处理一次触发，熔断期间跳过运行。
func (r *runner) step(ctx context.Context) {
	var err error
	if r.breaker == nil {
		err = r.runOnce(ctx)
	} else {
		err = r.breaker.Call(func() error { return r.runOnce(ctx) })
	}
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, risk.ErrOpen):
		// 跳过的触发也要喂 watchdog
		if r.afterRun != nil {
			r.afterRun()
		}
		r.logger.Debug("pricing run skipped", zap.Error(err))
	default:
		r.logger.Warn("pricing run failed, waiting for next trigger", zap.Error(err))
	}
}

// trigger 非阻塞发送，已有未处理的触发时丢弃。
func trigger(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// tickerTriggers 立即触发一次，之后按 interval 触发。
func tickerTriggers(ctx context.Context, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	trigger(ch)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				trigger(ch)
			}
		}
	}()
	return ch
}

// headTriggers 每 every 个新区块触发一次。
func headTriggers(ctx context.Context, heads <-chan gateway.Head, every int, logger *zap.Logger) <-chan struct{} {
	if every <= 0 {
		every = 1
	}
	ch := make(chan struct{}, 1)
	go func() {
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return
			case head, ok := <-heads:
				if !ok {
					close(ch)
					return
				}
				seen++
				if seen%every != 0 {
					continue
				}
				logger.Debug("block trigger", zap.Uint64("block", head.Number))
				trigger(ch)
			}
		}
	}()
	return ch
}
