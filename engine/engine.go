// Package engine 串联一次定价运行：读取合约当前报价和参考价，计算目标价，
// 应用借贷边界、区间和 cross 约束，决定是否提交。
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/infrastructure/monitor"
	"arm-pricer-go/lending"
	"arm-pricer-go/monitor/logschema"
	"arm-pricer-go/reference"
	"arm-pricer-go/risk"
	"arm-pricer-go/strategy"
)

// ErrNoSubmitter 需要提交但没有配置签名账户。
var ErrNoSubmitter = errors.New("no price submitter configured")

// QuotingContract 报价合约读取接口。
type QuotingContract interface {
	BuyPrice(ctx context.Context) (fixedpoint.Price, error)
	SellPrice(ctx context.Context) (fixedpoint.Price, error)
	CrossPrice(ctx context.Context) (fixedpoint.Price, error)
	LiquidityAsset(ctx context.Context) (common.Address, error)
	BaseAsset(ctx context.Context) (common.Address, error)
}

// PriceSubmitter 报价合约写入接口。
type PriceSubmitter interface {
	SubmitPrices(ctx context.Context, buy, sell fixedpoint.Price) (*types.Transaction, error)
}

// ReceiptWaiter 等待交易上链，回执失败时返回错误。
type ReceiptWaiter func(ctx context.Context, tx *types.Transaction) error

// BoundsCalculator 借贷边界，由 lending.Calculator 实现。
type BoundsCalculator interface {
	Bounds(ctx context.Context, in lending.Input) (lending.Bounds, error)
}

// Metrics 由 monitor.Monitor 实现。
type Metrics interface {
	SetReference(arm string, mid, buy, sell float64)
	SetTargets(arm string, buy, sell float64)
	SetCurrent(arm string, buy, sell float64)
	SetDiffs(arm string, buyBps, sellBps float64)
	SetLending(arm string, apy, holdingDays float64)
	RecordRun(arm, outcome string)
	RecordFailure(arm, kind string)
}

// Notifier 由 alert.Manager 实现。
type Notifier interface {
	PricesSubmitted(arm, buy, sell, tx string) error
	RunFailed(arm, kind string, err error) error
	BoundContradiction(arm, minBuy, mid string) error
}

// Components 引擎依赖组件，Contract 以外都可以为空。
type Components struct {
	Contract  QuotingContract
	Submitter PriceSubmitter
	Waiter    ReceiptWaiter
	Reference reference.Provider
	Rates     reference.ExchangeRateSource
	Lending   BoundsCalculator
	Logger    *zap.Logger
	Metrics   Metrics
	Alerts    Notifier
}

// Engine 单个 ARM 的定价引擎。运行之间不保存状态。
type Engine struct {
	name      string
	contract  QuotingContract
	submitter PriceSubmitter
	waiter    ReceiptWaiter
	reference reference.Provider
	rates     reference.ExchangeRateSource
	lending   BoundsCalculator
	logger    *zap.Logger
	metrics   Metrics
	alerts    Notifier
}

func New(name string, c Components) (*Engine, error) {
	if c.Contract == nil {
		return nil, fmt.Errorf("engine %s: quoting contract is required", name)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Alerts == nil {
		c.Alerts = nopNotifier{}
	}
	return &Engine{
		name:      name,
		contract:  c.Contract,
		submitter: c.Submitter,
		waiter:    c.Waiter,
		reference: c.Reference,
		rates:     c.Rates,
		lending:   c.Lending,
		logger:    c.Logger.With(zap.String("arm", name)),
		metrics:   c.Metrics,
		alerts:    c.Alerts,
	}, nil
}

func (e *Engine) Name() string { return e.name }

// Run 执行一次定价。任何上游错误都会中止运行，不会提交。
func (e *Engine) Run(ctx context.Context, opts PricingOptions) (Decision, error) {
	start := time.Now()
	d, err := e.run(ctx, opts)
	if err != nil {
		kind := FailureKind(err)
		e.metrics.RecordRun(e.name, monitor.OutcomeFailed)
		e.metrics.RecordFailure(e.name, kind)
		e.logger.Error("pricing run failed", zap.String("kind", kind), zap.Error(err))
		e.alerts.RunFailed(e.name, kind, err)
		return Decision{}, err
	}

	outcome := monitor.OutcomeUnchanged
	switch {
	case d.ShouldSubmit:
		outcome = monitor.OutcomeSubmitted
	case d.DryRun && d.Exceeded:
		outcome = monitor.OutcomeDryRun
	}
	e.metrics.RecordRun(e.name, outcome)
	e.logger.Info("pricing run finished", zap.String("outcome", outcome), zap.Duration("elapsed", time.Since(start)))
	return d, nil
}

func (e *Engine) run(ctx context.Context, opts PricingOptions) (Decision, error) {
	if err := opts.Validate(); err != nil {
		return Decision{}, err
	}
	explicit := opts.HasExplicitPair()

	// 合约读取和参考价互不依赖，并发执行
	var (
		current Current
		quote   reference.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.readCurrent(gctx)
		current = c
		return err
	})
	if !explicit {
		g.Go(func() error {
			q, err := e.referenceQuote(gctx, opts)
			quote = q
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}
	e.logger.Info("current prices",
		zap.Stringer("buy", current.Buy),
		zap.Stringer("sell", current.Sell),
		zap.Stringer("cross", current.Cross))
	e.metrics.SetCurrent(e.name, current.Buy.Float64(), current.Sell.Float64())

	var (
		targets  strategy.Targets
		stratTag string
	)
	if explicit {
		targets = strategy.Explicit(opts.BuyPrice.Decimal, opts.SellPrice.Decimal)
		stratTag = "explicit"
	} else {
		s := strategy.Select(opts.PriceOffset, quote)
		t, err := s.Targets(quote, strategy.Params{Fee: opts.Fee, Offset: opts.Offset})
		if err != nil {
			return Decision{}, fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		targets, stratTag = t, s.Name()
	}
	if !targets.Valid() {
		return Decision{}, fmt.Errorf("%s targets incomplete: %w", stratTag, strategy.ErrInsufficientPricingInput)
	}
	logger.Event(e.logger, logschema.EventTargetPrices, map[string]interface{}{
		"arm":      e.name,
		"strategy": stratTag,
		"buy":      targets.Buy.String(),
		"sell":     targets.Sell.String(),
		"fee":      opts.Fee.String(),
		"offset":   opts.Offset.String(),
	})

	rng := risk.Range{
		MinSell: bound(opts.MinSellPrice),
		MaxSell: bound(opts.MaxSellPrice),
		MinBuy:  bound(opts.MinBuyPrice),
		MaxBuy:  bound(opts.MaxBuyPrice),
	}
	var bounds lending.Bounds
	// 显式买卖价不使用借贷边界
	if !explicit && e.lending != nil {
		b, err := e.lending.Bounds(ctx, lending.Input{
			MinBuy:        rng.MinBuy,
			MaxBuy:        rng.MaxBuy,
			ReferenceMid:  quote.Mid,
			HoldingPeriod: opts.HoldingPeriod,
			Floor:         opts.MinBuyFloor,
			Premium:       opts.MaxBuyPremium,
		})
		if err != nil {
			return Decision{}, err
		}
		bounds = b
		rng.MinBuy, rng.MaxBuy = b.MinBuy, b.MaxBuy
		if b.Derived {
			e.logBounds(b, quote.Mid)
		}
	}

	adjusted, adjustments := rng.Apply(targets, current.Cross)
	for _, a := range adjustments {
		logger.Event(e.logger, logschema.EventRangeAdjust, map[string]interface{}{
			"arm":    e.name,
			"side":   a.Side,
			"reason": a.Reason,
			"from":   a.From.String(),
			"to":     a.To.String(),
		})
	}
	e.metrics.SetTargets(e.name, adjusted.Buy.Float64(), adjusted.Sell.Float64())

	d := Decide(adjusted, current, opts.Tolerance, opts.DryRun)
	d.Reference = quote
	d.Strategy = stratTag
	d.Bounds = bounds
	d.Adjustments = adjustments
	e.logDecision(d)

	if !d.ShouldSubmit {
		return d, nil
	}
	hash, err := e.submit(ctx, d, opts.Confirm)
	if err != nil {
		return Decision{}, err
	}
	d.TxHash = hash
	return d, nil
}

func (e *Engine) readCurrent(ctx context.Context) (Current, error) {
	sell, err := e.contract.SellPrice(ctx)
	if err != nil {
		return Current{}, fmt.Errorf("read sell price: %w", err)
	}
	buy, err := e.contract.BuyPrice(ctx)
	if err != nil {
		return Current{}, fmt.Errorf("read buy price: %w", err)
	}
	cross, err := e.contract.CrossPrice(ctx)
	if err != nil {
		return Current{}, fmt.Errorf("read cross price: %w", err)
	}
	return Current{Buy: buy, Sell: sell, Cross: cross}, nil
}

func (e *Engine) referenceQuote(ctx context.Context, opts PricingOptions) (reference.Quote, error) {
	var provider reference.Provider
	switch {
	case opts.MidPrice.Valid:
		provider = reference.NewMidPrice(opts.MidPrice.Decimal)
	case e.reference != nil:
		provider = e.reference
		if opts.Wrapped {
			if e.rates == nil {
				return reference.Quote{}, fmt.Errorf("no exchange rate source: %w", reference.ErrExchangeRateUnavailable)
			}
			provider = &reference.WrappedProvider{Provider: provider, Rates: e.rates}
		}
	default:
		return reference.Quote{}, fmt.Errorf("no explicit prices, mid price or reference source: %w", strategy.ErrInsufficientPricingInput)
	}

	var pair reference.Pair
	if !opts.MidPrice.Valid {
		var err error
		if pair.Liquidity, err = e.contract.LiquidityAsset(ctx); err != nil {
			return reference.Quote{}, fmt.Errorf("read liquidity asset: %w", err)
		}
		if pair.Base, err = e.contract.BaseAsset(ctx); err != nil {
			return reference.Quote{}, fmt.Errorf("read base asset: %w", err)
		}
	}

	q, err := provider.GetPrice(ctx, pair, opts.AmountWei())
	if err != nil {
		return reference.Quote{}, fmt.Errorf("reference price from %s: %w", provider.Name(), err)
	}
	logger.Event(e.logger, logschema.EventReferenceQuote, map[string]interface{}{
		"arm":    e.name,
		"source": q.Source,
		"mid":    q.Mid.String(),
		"buy":    q.Buy.String(),
		"sell":   q.Sell.String(),
	})
	e.metrics.SetReference(e.name, q.Mid.Float64(), q.Buy.Float64(), q.Sell.Float64())
	return q, nil
}

func (e *Engine) logBounds(b lending.Bounds, mid fixedpoint.Price) {
	days := b.HoldingPeriod.Hours() / 24
	logger.Event(e.logger, logschema.EventLendingBounds, map[string]interface{}{
		"arm":           e.name,
		"apr":           b.APR,
		"apy":           b.APY,
		"holdingDays":   days,
		"minBuy":        b.MinBuy.String(),
		"maxBuy":        b.MaxBuy.String(),
		"contradiction": b.Contradiction,
	})
	e.metrics.SetLending(e.name, b.APY, days)
	if b.Contradiction {
		logger.Risk(e.logger, logschema.EventBoundContradiction, map[string]interface{}{
			"arm":    e.name,
			"minBuy": b.MinBuy.String(),
			"maxBuy": b.MaxBuy.String(),
			"mid":    mid.String(),
		})
		e.alerts.BoundContradiction(e.name, b.MinBuy.String(), mid.String())
	}
}

func (e *Engine) logDecision(d Decision) {
	diffBuy, diffSell := bps(d.DiffBuy), bps(d.DiffSell)
	e.metrics.SetDiffs(e.name, diffBuy, diffSell)
	logger.Event(e.logger, logschema.EventQuoteDecision, map[string]interface{}{
		"arm":          e.name,
		"targetBuy":    d.TargetBuy.String(),
		"targetSell":   d.TargetSell.String(),
		"currentBuy":   d.CurrentBuy.String(),
		"currentSell":  d.CurrentSell.String(),
		"diffBuyBps":   diffBuy,
		"diffSellBps":  diffSell,
		"toleranceBps": bps(d.Tolerance),
		"exceeded":     d.Exceeded,
		"submit":       d.ShouldSubmit,
		"dryRun":       d.DryRun,
	})
	if d.DryRun && d.Exceeded {
		e.logger.Info("dry run, not submitting prices")
	}
}

func (e *Engine) submit(ctx context.Context, d Decision, confirm bool) (string, error) {
	if e.submitter == nil {
		return "", ErrNoSubmitter
	}
	tx, err := e.submitter.SubmitPrices(ctx, d.TargetBuy, d.TargetSell)
	if err != nil {
		return "", fmt.Errorf("submit prices: %w", err)
	}
	hash := tx.Hash().Hex()
	logger.Event(e.logger, logschema.EventPricesSubmitted, map[string]interface{}{
		"arm":  e.name,
		"buy":  d.TargetBuy.String(),
		"sell": d.TargetSell.String(),
		"tx":   hash,
	})
	e.alerts.PricesSubmitted(e.name, d.TargetBuy.String(), d.TargetSell.String(), hash)
	if confirm && e.waiter != nil {
		if err := e.waiter(ctx, tx); err != nil {
			return hash, fmt.Errorf("confirm %s: %w", hash, err)
		}
	}
	return hash, nil
}

// FailureKind 错误分类，用于指标和告警。
func FailureKind(err error) string {
	switch {
	case errors.Is(err, reference.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, reference.ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, reference.ErrExchangeRateUnavailable):
		return "exchange_rate_unavailable"
	case errors.Is(err, strategy.ErrInsufficientPricingInput):
		return "insufficient_input"
	case errors.Is(err, fixedpoint.ErrDivideByZero):
		return "divide_by_zero"
	case errors.Is(err, ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, ErrNoSubmitter):
		return "no_submitter"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

type nopMetrics struct{}

func (nopMetrics) SetReference(string, float64, float64, float64) {}
func (nopMetrics) SetTargets(string, float64, float64) {}
func (nopMetrics) SetCurrent(string, float64, float64) {}
func (nopMetrics) SetDiffs(string, float64, float64) {}
func (nopMetrics) SetLending(string, float64, float64) {}
func (nopMetrics) RecordRun(string, string) {}
func (nopMetrics) RecordFailure(string, string) {}

type nopNotifier struct{}

func (nopNotifier) PricesSubmitted(string, string, string, string) error { return nil }
func (nopNotifier) RunFailed(string, string, error) error { return nil }
func (nopNotifier) BoundContradiction(string, string, string) error { return nil }
