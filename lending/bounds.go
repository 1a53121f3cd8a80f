// Package lending 根据借贷市场收益率推导买价上下限。
//
// 买入基础资产后需要持有一段时间才能赎回；如果买价高于把流动性放在借贷市场
// 同期的收益折现，就不划算。
package lending

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
)

const (
	DefaultHoldingPeriod = 15 * 24 * time.Hour
	daysPerYear          = 365
)

var (
	// DefaultMinBuyFloor 最低买价下限的下限。
	DefaultMinBuyFloor = decimal.RequireFromString("0.99")
	// DefaultMaxBuyPremium 最高买价相对市场中间价的溢价（0.1bp）。
	DefaultMaxBuyPremium = decimal.RequireFromString("0.00001")
)

// APY 按日复利把 APR 换算成 APY。
func APY(apr float64) float64 {
	return math.Pow(1+apr/daysPerYear, daysPerYear) - 1
}

// MinBuyPrice 1 / (1+apy)^(days/365)，立即量化为 36 位精度，不低于 floor。
func MinBuyPrice(apy float64, holding time.Duration, floor fixedpoint.Price) fixedpoint.Price {
	days := holding.Hours() / 24
	v := 1 / math.Pow(1+apy, days/daysPerYear)
	// apy<=-1 时没有意义，直接取 floor
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return floor.Rescale(fixedpoint.PriceScale)
	}
	p := fixedpoint.FromDecimal(decimal.NewFromFloat(v), fixedpoint.PriceScale)
	if floor.Valid() && p.Cmp(floor) < 0 {
		return floor.Rescale(fixedpoint.PriceScale)
	}
	return p
}

// MaxBuyPrice mid*(1+premium)；结果不低于 minBuy 时返回 minBuy 和 true。
func MaxBuyPrice(mid, minBuy fixedpoint.Price, premium decimal.Decimal) (fixedpoint.Price, bool) {
	mid36 := mid.Rescale(fixedpoint.PriceScale)
	prem := fixedpoint.FromDecimal(premium, fixedpoint.TokenScale).Int()
	bump, _ := mid36.MulDiv(prem, fixedpoint.Pow10(fixedpoint.TokenScale))
	maxBuy := mid36.Add(bump)
	if minBuy.Valid() && maxBuy.Cmp(minBuy) >= 0 {
		return minBuy.Rescale(fixedpoint.PriceScale), true
	}
	return maxBuy, false
}
