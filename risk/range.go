package risk

import (
	"math/big"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/strategy"
)

// Adjustment 记录一次价格修正，用于审计日志。
type Adjustment struct {
	Side   string
	Reason string
	From   fixedpoint.Price
	To     fixedpoint.Price
}

const (
	SideBuy  = "buy"
	SideSell = "sell"

	ReasonAboveMax   = "above_max"
	ReasonBelowMin   = "below_min"
	ReasonBelowCross = "below_cross"
	ReasonAtCross    = "at_or_above_cross"
)

// Clamp 先检查上限，再独立检查下限；min > max 时结果为 min。
// 未设置的边界被忽略。
func Clamp(price, lo, hi fixedpoint.Price) (fixedpoint.Price, []Adjustment) {
	var adj []Adjustment
	if hi.Valid() && price.Cmp(hi) > 0 {
		adj = append(adj, Adjustment{Reason: ReasonAboveMax, From: price, To: hi})
		price = hi
	}
	if lo.Valid() && price.Cmp(lo) < 0 {
		adj = append(adj, Adjustment{Reason: ReasonBelowMin, From: price, To: lo})
		price = lo
	}
	return price, adj
}

// EnforceCross 卖价不得低于 cross，买价必须严格低于 cross。
func EnforceCross(buy, sell, cross fixedpoint.Price) (fixedpoint.Price, fixedpoint.Price, []Adjustment) {
	if !cross.Valid() {
		return buy, sell, nil
	}
	var adj []Adjustment
	if sell.Cmp(cross) < 0 {
		adj = append(adj, Adjustment{Side: SideSell, Reason: ReasonBelowCross, From: sell, To: cross})
		sell = cross
	}
	if buy.Cmp(cross) >= 0 {
		c := cross.Rescale(fixedpoint.PriceScale)
		below := fixedpoint.New(new(big.Int).Sub(c.Int(), big.NewInt(1)), fixedpoint.PriceScale)
		adj = append(adj, Adjustment{Side: SideBuy, Reason: ReasonAtCross, From: buy, To: below})
		buy = below
	}
	return buy, sell, adj
}

// Range 调用方给定或借贷市场推导的价格区间，字段可以未设置。
type Range struct {
	MinSell fixedpoint.Price
	MaxSell fixedpoint.Price
	MinBuy  fixedpoint.Price
	MaxBuy  fixedpoint.Price
}

// Apply 依次执行卖价、买价区间修正和 cross 约束。cross 约束最后执行。
func (r Range) Apply(t strategy.Targets, cross fixedpoint.Price) (strategy.Targets, []Adjustment) {
	var all []Adjustment

	sell, adj := Clamp(t.Sell, r.MinSell, r.MaxSell)
	all = append(all, withSide(adj, SideSell)...)
	buy, adj := Clamp(t.Buy, r.MinBuy, r.MaxBuy)
	all = append(all, withSide(adj, SideBuy)...)

	buy, sell, adj = EnforceCross(buy, sell, cross)
	all = append(all, adj...)

	return strategy.Targets{
		Buy:  buy.Rescale(fixedpoint.PriceScale),
		Sell: sell.Rescale(fixedpoint.PriceScale),
	}, all
}

func withSide(adj []Adjustment, side string) []Adjustment {
	for i := range adj {
		adj[i].Side = side
	}
	return adj
}
