package engine

import (
	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/lending"
	"arm-pricer-go/reference"
	"arm-pricer-go/risk"
	"arm-pricer-go/strategy"
)

// Current 合约当前报价，36 位精度。
type Current struct {
	Buy   fixedpoint.Price
	Sell  fixedpoint.Price
	Cross fixedpoint.Price
}

// Decision 单次运行的结果。
type Decision struct {
	TargetBuy   fixedpoint.Price
	TargetSell  fixedpoint.Price
	CurrentBuy  fixedpoint.Price
	CurrentSell fixedpoint.Price
	DiffBuy     fixedpoint.Price
	DiffSell    fixedpoint.Price
	Tolerance   fixedpoint.Price
	// Exceeded 价差超过容忍度，与 DryRun 无关
	Exceeded     bool
	ShouldSubmit bool
	DryRun       bool

	// 以下字段只由 Engine.Run 填充，用于审计
	Reference   reference.Quote
	Strategy    string
	Bounds      lending.Bounds
	Adjustments []risk.Adjustment
	TxHash      string
}

// Decide 比较目标价和当前价。tolerance 为基点，换算到 36 位精度即 tol*1e32。
func Decide(target strategy.Targets, current Current, tolerance decimal.Decimal, dryRun bool) Decision {
	tol := fixedpoint.FromBps(tolerance, fixedpoint.PriceScale)
	diffBuy := target.Buy.AbsDiff(current.Buy)
	diffSell := target.Sell.AbsDiff(current.Sell)
	exceeded := diffBuy.Cmp(tol) > 0 || diffSell.Cmp(tol) > 0
	return Decision{
		TargetBuy:    target.Buy,
		TargetSell:   target.Sell,
		CurrentBuy:   current.Buy,
		CurrentSell:  current.Sell,
		DiffBuy:      diffBuy,
		DiffSell:     diffSell,
		Tolerance:    tol,
		Exceeded:     exceeded,
		ShouldSubmit: exceeded && !dryRun,
		DryRun:       dryRun,
	}
}

// bps 把 36 位精度的价差换算成基点，仅用于日志和指标。
func bps(p fixedpoint.Price) float64 {
	return p.Decimal().Shift(fixedpoint.BpsScale).InexactFloat64()
}
