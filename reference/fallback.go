package reference

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result 单个来源的结果，用于审计日志。
type Result struct {
	Provider string
	Quote    Quote
	Err      error
}

// Fallback 并发请求所有来源，按优先级取第一个成功的报价。
// ErrQuoteUnavailable 可恢复（换下一个来源），其它错误直接中止。
type Fallback struct {
	Providers []Provider
	Logger    *zap.Logger
}

func NewFallback(logger *zap.Logger, providers ...Provider) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{Providers: providers, Logger: logger}
}

func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.Providers))
	for _, p := range f.Providers {
		names = append(names, p.Name())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// FetchAll 并发获取所有来源的报价，结果顺序与 Providers 一致。
func (f *Fallback) FetchAll(ctx context.Context, pair Pair, amount *big.Int) []Result {
	results := make([]Result, len(f.Providers))
	var g errgroup.Group
	for i, p := range f.Providers {
		g.Go(func() error {
			q, err := p.GetPrice(ctx, pair, amount)
			results[i] = Result{Provider: p.Name(), Quote: q, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fallback) GetPrice(ctx context.Context, pair Pair, amount *big.Int) (Quote, error) {
	if len(f.Providers) == 0 {
		return Quote{}, fmt.Errorf("no reference providers: %w", ErrQuoteUnavailable)
	}
	results := f.FetchAll(ctx, pair, amount)
	for _, r := range results {
		if r.Err == nil {
			return r.Quote, nil
		}
		if !errors.Is(r.Err, ErrQuoteUnavailable) {
			return Quote{}, r.Err
		}
		f.Logger.Warn("reference source unavailable, trying next",
			zap.String("provider", r.Provider), zap.Error(r.Err))
	}
	return Quote{}, fmt.Errorf("all reference providers: %w", ErrQuoteUnavailable)
}
