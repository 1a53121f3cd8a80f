package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// 参考价来源
const (
	SourceMid   = "mid"
	SourceCurve = "curve"
	SourceInch  = "inch"
	SourceKyber = "kyber"
	SourceFly   = "fly"
)

// 借贷利率来源
const (
	LendingSilo   = "silo"
	LendingMorpho = "morpho"
)

var knownSources = map[string]bool{
	SourceMid: true, SourceCurve: true, SourceInch: true, SourceKyber: true, SourceFly: true,
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Chain.RPCURL == "" {
		return ErrInvalid("chain.rpcURL is required (or ARM_RPC_URL)")
	}
	if cfg.Chain.ChainID < 0 {
		return ErrInvalid("chain.chainID must be >= 0")
	}
	if cfg.Alert.ThrottleSeconds < 0 {
		return ErrInvalid("alert.throttleSeconds must be >= 0")
	}
	if cfg.Breaker.Threshold < 0 || cfg.Breaker.CooldownSeconds < 0 {
		return ErrInvalid("breaker.threshold and breaker.cooldownSeconds must be >= 0")
	}
	if len(cfg.ARMs) == 0 {
		return ErrInvalid("arms config is required")
	}
	names := make([]string, 0, len(cfg.ARMs))
	for name := range cfg.ARMs {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := validateARM(name, cfg.ARMs[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateARM(name string, a ARMConfig) error {
	if !common.IsHexAddress(a.Address) {
		return ErrInvalid(fmt.Sprintf("arm %s address %q is not a hex address", name, a.Address))
	}
	for _, addr := range []struct{ field, v string }{
		{"wrapper", a.Wrapper}, {"vault", a.Vault}, {"curve.pool", a.Curve.Pool}, {"lending.market", a.Lending.Market},
	} {
		if addr.v != "" && !common.IsHexAddress(addr.v) {
			return ErrInvalid(fmt.Sprintf("arm %s %s %q is not a hex address", name, addr.field, addr.v))
		}
	}
	for _, s := range a.Sources() {
		if !knownSources[s] {
			return ErrInvalid(fmt.Sprintf("arm %s unknown source %q", name, s))
		}
		if s == SourceCurve {
			if a.Curve.Pool == "" || len(a.Curve.Coins) < 2 {
				return ErrInvalid(fmt.Sprintf("arm %s curve source needs curve.pool and two coins", name))
			}
			for coin := range a.Curve.Coins {
				if !common.IsHexAddress(coin) {
					return ErrInvalid(fmt.Sprintf("arm %s curve coin %q is not a hex address", name, coin))
				}
			}
		}
	}
	for src, fee := range a.FeeBps {
		if _, err := nonNegative(fee); err != nil {
			return ErrInvalid(fmt.Sprintf("arm %s feeBps.%s: %v", name, src, err))
		}
	}
	if a.Pricing.Wrapped && a.Wrapper == "" {
		return ErrInvalid(fmt.Sprintf("arm %s pricing.wrapped needs wrapper", name))
	}
	switch a.Lending.Provider {
	case "", LendingSilo, LendingMorpho:
	default:
		return ErrInvalid(fmt.Sprintf("arm %s unknown lending provider %q", name, a.Lending.Provider))
	}
	if src := a.Lending.PriceSource; src != "" {
		if !knownSources[src] || src == SourceMid {
			return ErrInvalid(fmt.Sprintf("arm %s lending.priceSource %q must be a swap source", name, src))
		}
		if src == SourceCurve && a.Curve.Pool == "" {
			return ErrInvalid(fmt.Sprintf("arm %s lending.priceSource curve needs curve.pool", name))
		}
	}
	if _, err := a.Lending.MarketPriceAmount(); err != nil {
		return ErrInvalid(fmt.Sprintf("arm %s %v", name, err))
	}
	if a.Lending.HoldingDays < 0 {
		return ErrInvalid(fmt.Sprintf("arm %s lending.holdingDays must be >= 0", name))
	}
	if a.Withdrawal.MaturationDays < 0 {
		return ErrInvalid(fmt.Sprintf("arm %s withdrawal.maturationDays must be >= 0", name))
	}
	if a.Withdrawal.Enabled && a.Vault == "" {
		return ErrInvalid(fmt.Sprintf("arm %s withdrawal estimate needs vault", name))
	}
	if _, err := a.PricingOptions(); err != nil {
		return ErrInvalid(fmt.Sprintf("arm %s pricing: %v", name, err))
	}
	return nil
}

func nonNegative(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be >= 0", s)
	}
	return d, nil
}
