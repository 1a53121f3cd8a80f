package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/reference"
)

// ErrInsufficientPricingInput 既没有显式价格，也没有可用的参考价。
var ErrInsufficientPricingInput = errors.New("insufficient pricing input")

// Targets 目标买卖价，36 位精度。
type Targets struct {
	Buy  fixedpoint.Price
	Sell fixedpoint.Price
}

func (t Targets) Valid() bool { return t.Buy.Valid() && t.Sell.Valid() }

// Params 策略参数，单位均为基点，可以是小数。
type Params struct {
	Fee    decimal.Decimal
	Offset decimal.Decimal
}

// Strategy 由参考价计算目标价。
type Strategy interface {
	Name() string
	Targets(ref reference.Quote, p Params) (Targets, error)
}

// feeScale 费率精度：1bp = 100。
var feeScale = fixedpoint.Pow10(6)

// FeeStrategy 围绕（偏移后的）中间价对称加减费率：
// sell = mid / (1-fee)，buy = mid * (1-fee)。
type FeeStrategy struct{}

func (FeeStrategy) Name() string { return string(KindFee) }

func (FeeStrategy) Targets(ref reference.Quote, p Params) (Targets, error) {
	if !ref.Mid.Valid() || ref.Mid.Sign() <= 0 {
		return Targets{}, fmt.Errorf("fee strategy needs a mid price: %w", ErrInsufficientPricingInput)
	}
	feeRate := decimal.NewFromBigInt(feeScale, 0).Sub(p.Fee.Mul(decimal.NewFromInt(100))).BigInt()
	if feeRate.Sign() <= 0 {
		return Targets{}, fmt.Errorf("fee %s bps too large", p.Fee)
	}
	offsetMid := ref.Mid.Rescale(fixedpoint.TokenScale).
		Sub(fixedpoint.FromBps(p.Offset, fixedpoint.TokenScale)).
		Rescale(fixedpoint.PriceScale)

	sell, err := offsetMid.MulDiv(feeScale, feeRate)
	if err != nil {
		return Targets{}, err
	}
	buy, err := offsetMid.MulDiv(feeRate, feeScale)
	if err != nil {
		return Targets{}, err
	}
	return Targets{Buy: buy, Sell: sell}, nil
}

// OffsetStrategy 买价锚定参考卖价加偏移，卖价在买价上加两倍费率。
type OffsetStrategy struct{}

func (OffsetStrategy) Name() string { return string(KindOffset) }

func (OffsetStrategy) Targets(ref reference.Quote, p Params) (Targets, error) {
	if !ref.Sell.Valid() || ref.Sell.Sign() <= 0 {
		return Targets{}, fmt.Errorf("offset strategy needs a reference sell price: %w", ErrInsufficientPricingInput)
	}
	buy := ref.Sell.Rescale(fixedpoint.TokenScale).
		Add(fixedpoint.FromBps(p.Offset, fixedpoint.TokenScale)).
		Rescale(fixedpoint.PriceScale)
	sell := buy.Add(fixedpoint.FromBps(p.Fee.Mul(decimal.NewFromInt(2)), fixedpoint.PriceScale))
	return Targets{Buy: buy, Sell: sell}, nil
}

// Explicit 调用方直接给定的买卖价（18 位截断后放大到 36 位）。
func Explicit(buy, sell decimal.Decimal) Targets {
	return Targets{
		Buy:  fixedpoint.FromDecimal(buy, fixedpoint.TokenScale).Rescale(fixedpoint.PriceScale),
		Sell: fixedpoint.FromDecimal(sell, fixedpoint.TokenScale).Rescale(fixedpoint.PriceScale),
	}
}
