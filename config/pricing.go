package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"arm-pricer-go/engine"
)

// PricingOptions 把 ARM 配置转换为引擎参数，并做引擎层面的校验。
func (a ARMConfig) PricingOptions() (engine.PricingOptions, error) {
	p := a.Pricing
	opts := engine.PricingOptions{
		PriceOffset: p.PriceOffset,
		Wrapped:     p.Wrapped,
		DryRun:      p.DryRun,
		Confirm:     p.Confirm,
	}

	var err error
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"fee", p.Fee, &opts.Fee},
		{"tolerance", p.Tolerance, &opts.Tolerance},
		{"offset", p.Offset, &opts.Offset},
		{"amount", p.Amount, &opts.Amount},
	} {
		if *f.dst, err = optionalDecimal(f.raw); err != nil {
			return engine.PricingOptions{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"buyPrice", p.BuyPrice, &opts.BuyPrice},
		{"sellPrice", p.SellPrice, &opts.SellPrice},
		{"midPrice", p.MidPrice, &opts.MidPrice},
		{"minSellPrice", p.MinSellPrice, &opts.MinSellPrice},
		{"maxSellPrice", p.MaxSellPrice, &opts.MaxSellPrice},
		{"minBuyPrice", p.MinBuyPrice, &opts.MinBuyPrice},
		{"maxBuyPrice", p.MaxBuyPrice, &opts.MaxBuyPrice},
		{"lending.minBuyFloor", a.Lending.MinBuyFloor, &opts.MinBuyFloor},
		{"lending.maxBuyPremium", a.Lending.MaxBuyPremium, &opts.MaxBuyPremium},
	} {
		if *f.dst, err = nullDecimal(f.raw); err != nil {
			return engine.PricingOptions{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if a.Lending.HoldingDays > 0 {
		opts.HoldingPeriod = time.Duration(a.Lending.HoldingDays * float64(24*time.Hour))
	}
	if a.Source == SourceMid && !opts.MidPrice.Valid && !opts.HasExplicitPair() {
		return engine.PricingOptions{}, fmt.Errorf("source %q needs pricing.midPrice", SourceMid)
	}
	return opts, opts.Validate()
}

// DefaultMarketPriceAmount 借贷市场价的报价数量。
var DefaultMarketPriceAmount = decimal.NewFromInt(1000)

// MarketPriceAmount lending.priceAmount 换算为 18 位精度的数量。
func (l LendingConfig) MarketPriceAmount() (*big.Int, error) {
	amount := DefaultMarketPriceAmount
	if l.PriceAmount != "" {
		d, err := decimal.NewFromString(l.PriceAmount)
		if err != nil {
			return nil, fmt.Errorf("lending.priceAmount: %w", err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("lending.priceAmount %s must be > 0", d)
		}
		amount = d
	}
	return amount.Shift(18).BigInt(), nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
