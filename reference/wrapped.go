package reference

import (
	"context"
	"fmt"
	"math/big"

	"arm-pricer-go/fixedpoint"
)

// ExchangeRateSource 包装资产每份对应的底层资产数量（例如 ERC-4626 convertToAssets）。
type ExchangeRateSource interface {
	ExchangeRate(ctx context.Context) (fixedpoint.Price, error)
}

// Adjust 把底层资产计价的报价换算成包装资产计价：price / rate。
func Adjust(q Quote, rate fixedpoint.Price) (Quote, error) {
	if rate.Sign() <= 0 {
		return Quote{}, ErrExchangeRateUnavailable
	}
	out := Quote{Source: q.Source}
	for _, f := range []struct {
		in  fixedpoint.Price
		out *fixedpoint.Price
	}{{q.Mid, &out.Mid}, {q.Buy, &out.Buy}, {q.Sell, &out.Sell}} {
		if !f.in.Valid() {
			continue
		}
		v, err := f.in.Div(rate)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: %v", ErrExchangeRateUnavailable, err)
		}
		*f.out = v
	}
	return out, nil
}

// WrappedProvider 在底层 Provider 的报价上应用兑换率。
type WrappedProvider struct {
	Provider Provider
	Rates    ExchangeRateSource
}

func (w *WrappedProvider) Name() string { return w.Provider.Name() + "/wrapped" }

func (w *WrappedProvider) GetPrice(ctx context.Context, pair Pair, amount *big.Int) (Quote, error) {
	q, err := w.Provider.GetPrice(ctx, pair, amount)
	if err != nil {
		return Quote{}, err
	}
	rate, err := w.Rates.ExchangeRate(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrExchangeRateUnavailable, err)
	}
	return Adjust(q, rate)
}
