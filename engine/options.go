package engine

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/strategy"
)

// ErrInvalidOptions 定价参数不合法。
var ErrInvalidOptions = errors.New("invalid pricing options")

// DefaultAmount 参考报价的名义数量（基础资产整数单位）。
var DefaultAmount = decimal.NewFromInt(100)

var maxFeeBps = decimal.NewFromInt(10000)

// PricingOptions 单次运行的定价参数。Fee/Tolerance/Offset 单位为基点，可以是小数；
// 价格类参数为十进制价格，例如 0.9998。
type PricingOptions struct {
	Fee       decimal.Decimal
	Tolerance decimal.Decimal
	Offset    decimal.Decimal

	// 显式买卖价，必须成对给出
	BuyPrice  decimal.NullDecimal
	SellPrice decimal.NullDecimal
	// 显式参考中间价，优先于参考价来源
	MidPrice decimal.NullDecimal

	MinSellPrice decimal.NullDecimal
	MaxSellPrice decimal.NullDecimal
	MinBuyPrice  decimal.NullDecimal
	MaxBuyPrice  decimal.NullDecimal

	PriceOffset bool
	Wrapped     bool
	DryRun      bool
	// Confirm 提交后等待回执
	Confirm bool

	Amount decimal.Decimal
	// HoldingPeriod 为 0 时由提款队列估算或使用默认 15 天
	HoldingPeriod time.Duration
	MinBuyFloor   decimal.NullDecimal
	MaxBuyPremium decimal.NullDecimal
}

// HasExplicitPair 是否给定了显式买卖价。
func (o PricingOptions) HasExplicitPair() bool {
	return o.BuyPrice.Valid && o.SellPrice.Valid
}

func (o PricingOptions) Validate() error {
	if o.BuyPrice.Valid != o.SellPrice.Valid {
		return fmt.Errorf("buy and sell prices must be supplied together: %w", strategy.ErrInsufficientPricingInput)
	}
	if o.HasExplicitPair() && (o.BuyPrice.Decimal.Sign() <= 0 || o.SellPrice.Decimal.Sign() <= 0) {
		return fmt.Errorf("%w: explicit prices must be positive", ErrInvalidOptions)
	}
	if o.Fee.IsNegative() || o.Fee.GreaterThanOrEqual(maxFeeBps) {
		return fmt.Errorf("%w: fee %s bps out of range [0, 10000)", ErrInvalidOptions, o.Fee)
	}
	if o.Tolerance.IsNegative() {
		return fmt.Errorf("%w: tolerance %s bps is negative", ErrInvalidOptions, o.Tolerance)
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrInvalidOptions, o.Amount)
	}
	if o.MidPrice.Valid && o.MidPrice.Decimal.Sign() <= 0 {
		return fmt.Errorf("%w: mid price must be positive", ErrInvalidOptions)
	}
	if o.HoldingPeriod < 0 {
		return fmt.Errorf("%w: holding period is negative", ErrInvalidOptions)
	}
	return nil
}

// AmountWei 名义数量，18 位精度。
func (o PricingOptions) AmountWei() *big.Int {
	amount := o.Amount
	if amount.IsZero() {
		amount = DefaultAmount
	}
	return fixedpoint.FromDecimal(amount, fixedpoint.TokenScale).Int()
}

// bound 区间参数按 36 位精度解析，未设置时返回未设置的 Price。
func bound(d decimal.NullDecimal) fixedpoint.Price {
	if !d.Valid {
		return fixedpoint.Price{}
	}
	return fixedpoint.FromDecimal(d.Decimal, fixedpoint.PriceScale)
}
