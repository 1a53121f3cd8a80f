package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arm-pricer-go/fixedpoint"
)

// HoldingPeriodSource 估算持有期，例如按提款队列估算。
type HoldingPeriodSource interface {
	HoldingPeriod(ctx context.Context) (time.Duration, error)
}

type Config struct {
	// HoldingPeriod >0 时固定使用，否则用 Holding 估算，再否则 15 天。
	HoldingPeriod time.Duration
	MinBuyFloor   decimal.Decimal
	MaxBuyPremium decimal.Decimal
}

func DefaultConfig() Config {
	return Config{MinBuyFloor: DefaultMinBuyFloor, MaxBuyPremium: DefaultMaxBuyPremium}
}

// Input 显式给定的边界（可以未设置）和参考中间价。
// HoldingPeriod/Floor/Premium 非零时覆盖 Config。
type Input struct {
	MinBuy       fixedpoint.Price
	MaxBuy       fixedpoint.Price
	ReferenceMid fixedpoint.Price

	HoldingPeriod time.Duration
	Floor         decimal.NullDecimal
	Premium       decimal.NullDecimal
}

// Bounds 推导结果，未推导时只回显显式值。
type Bounds struct {
	MinBuy        fixedpoint.Price
	MaxBuy        fixedpoint.Price
	APR           float64
	APY           float64
	HoldingPeriod time.Duration
	Derived       bool
	// Contradiction 市场推导的最高买价不低于最低买价，已改用最低买价。
	Contradiction bool
}

type Calculator struct {
	Market  LendingMarket
	Holding HoldingPeriodSource
	cfg     Config
	logger  *zap.Logger
}

func NewCalculator(market LendingMarket, holding HoldingPeriodSource, cfg Config, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinBuyFloor.IsZero() {
		cfg.MinBuyFloor = DefaultMinBuyFloor
	}
	if cfg.MaxBuyPremium.IsZero() {
		cfg.MaxBuyPremium = DefaultMaxBuyPremium
	}
	return &Calculator{Market: market, Holding: holding, cfg: cfg, logger: logger}
}

func (c *Calculator) holdingPeriod(ctx context.Context, override time.Duration) (time.Duration, error) {
	if override > 0 {
		return override, nil
	}
	if c.cfg.HoldingPeriod > 0 {
		return c.cfg.HoldingPeriod, nil
	}
	if c.Holding == nil {
		return DefaultHoldingPeriod, nil
	}
	d, err := c.Holding.HoldingPeriod(ctx)
	if err != nil {
		return 0, fmt.Errorf("holding period: %w", err)
	}
	return d, nil
}

// Bounds 显式值优先；两个都给定或没有借贷市场时不查询市场。
func (c *Calculator) Bounds(ctx context.Context, in Input) (Bounds, error) {
	out := Bounds{MinBuy: in.MinBuy, MaxBuy: in.MaxBuy}
	if (in.MinBuy.Valid() && in.MaxBuy.Valid()) || c == nil || c.Market == nil {
		return out, nil
	}

	apr, err := c.Market.AnnualRate(ctx)
	if errors.Is(err, ErrNoActiveMarket) {
		c.logger.Info("no active lending market, skipping lending bounds")
		return out, nil
	}
	if err != nil {
		return Bounds{}, fmt.Errorf("lending rate: %w", err)
	}
	out.APR = apr
	out.APY = APY(apr)
	out.Derived = true

	// 持有期只影响最低买价，显式给定时不读取提款队列
	if !out.MinBuy.Valid() {
		holding, err := c.holdingPeriod(ctx, in.HoldingPeriod)
		if err != nil {
			return Bounds{}, err
		}
		out.HoldingPeriod = holding
		floorDec := c.cfg.MinBuyFloor
		if in.Floor.Valid {
			floorDec = in.Floor.Decimal
		}
		floor := fixedpoint.FromDecimal(floorDec, fixedpoint.PriceScale)
		out.MinBuy = MinBuyPrice(out.APY, holding, floor)
	}
	if !out.MaxBuy.Valid() {
		mid, err := c.Market.MidPrice(ctx)
		if errors.Is(err, ErrNoMidPrice) {
			mid = in.ReferenceMid
		} else if err != nil {
			return Bounds{}, fmt.Errorf("lending mid price: %w", err)
		}
		premium := c.cfg.MaxBuyPremium
		if in.Premium.Valid {
			premium = in.Premium.Decimal
		}
		if mid.Valid() {
			out.MaxBuy, out.Contradiction = MaxBuyPrice(mid, out.MinBuy, premium)
			if out.Contradiction {
				c.logger.Debug("max buy price not below min buy price, using min",
					zap.String("mid", mid.String()),
					zap.String("minBuy", out.MinBuy.String()))
			}
		}
	}
	return out, nil
}
