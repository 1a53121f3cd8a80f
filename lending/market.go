package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/reference"
)

var (
	// ErrNoActiveMarket ARM 没有启用借贷市场，不产生边界。
	ErrNoActiveMarket = errors.New("no active lending market")
	// ErrNoMidPrice 借贷市场不提供中间价，调用方改用参考中间价。
	ErrNoMidPrice = errors.New("lending market has no mid price")
)

// LendingMarket 借贷市场读取接口。
type LendingMarket interface {
	// AnnualRate 小数形式的 APR。
	AnnualRate(ctx context.Context) (float64, error)
	MidPrice(ctx context.Context) (fixedpoint.Price, error)
}

// MarketLocator 返回 ARM 当前的借贷市场适配器地址。
type MarketLocator interface {
	ActiveMarket(ctx context.Context) (common.Address, error)
}

// RateSource 按底层市场地址查询供应 APR。
type RateSource interface {
	SupplyAPR(ctx context.Context, market common.Address) (float64, error)
}

// MidPriceSource 借贷市场自身的中间价。
type MidPriceSource interface {
	MidPrice(ctx context.Context) (fixedpoint.Price, error)
}

// AssetSource ARM 的资产对。
type AssetSource interface {
	LiquidityAsset(ctx context.Context) (common.Address, error)
	BaseAsset(ctx context.Context) (common.Address, error)
}

// QuoteMidPrice 用一个报价来源在固定数量下的中间价作为借贷市场价，
// 例如 1000 OS 的 fly.trade 报价。
type QuoteMidPrice struct {
	Provider reference.Provider
	Assets   AssetSource
	Amount   *big.Int
}

var _ MidPriceSource = (*QuoteMidPrice)(nil)

func (q *QuoteMidPrice) MidPrice(ctx context.Context) (fixedpoint.Price, error) {
	var (
		pair reference.Pair
		err  error
	)
	if pair.Liquidity, err = q.Assets.LiquidityAsset(ctx); err != nil {
		return fixedpoint.Price{}, fmt.Errorf("liquidity asset: %w", err)
	}
	if pair.Base, err = q.Assets.BaseAsset(ctx); err != nil {
		return fixedpoint.Price{}, fmt.Errorf("base asset: %w", err)
	}
	quote, err := q.Provider.GetPrice(ctx, pair, q.Amount)
	if err != nil {
		return fixedpoint.Price{}, fmt.Errorf("%s market price: %w", q.Provider.Name(), err)
	}
	if !quote.Mid.Valid() || quote.Mid.Sign() <= 0 {
		return fixedpoint.Price{}, fmt.Errorf("%s market price: %w", q.Provider.Name(), reference.ErrQuoteUnavailable)
	}
	return quote.Mid, nil
}

// UnderlyingFunc 把适配器地址解析为底层市场地址。
type UnderlyingFunc func(ctx context.Context, wrapper common.Address) (common.Address, error)

// Market 组合链上适配器和链下 APR 接口。
type Market struct {
	Locator    MarketLocator
	Underlying UnderlyingFunc
	Rates      RateSource
	Prices     MidPriceSource
	// Override 非零时直接使用该市场地址，不查询 ARM。
	Override common.Address
}

var _ LendingMarket = (*Market)(nil)

func (m *Market) resolve(ctx context.Context) (common.Address, error) {
	if m.Override != (common.Address{}) {
		return m.Override, nil
	}
	if m.Locator == nil {
		return common.Address{}, ErrNoActiveMarket
	}
	wrapper, err := m.Locator.ActiveMarket(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("active market: %w", err)
	}
	if wrapper == (common.Address{}) {
		return common.Address{}, ErrNoActiveMarket
	}
	if m.Underlying == nil {
		return wrapper, nil
	}
	underlying, err := m.Underlying(ctx, wrapper)
	if err != nil {
		return common.Address{}, fmt.Errorf("underlying market of %s: %w", wrapper.Hex(), err)
	}
	return underlying, nil
}

func (m *Market) AnnualRate(ctx context.Context) (float64, error) {
	addr, err := m.resolve(ctx)
	if err != nil {
		return 0, err
	}
	apr, err := m.Rates.SupplyAPR(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("supply apr of %s: %w", addr.Hex(), err)
	}
	return apr, nil
}

func (m *Market) MidPrice(ctx context.Context) (fixedpoint.Price, error) {
	if m.Prices == nil {
		return fixedpoint.Price{}, ErrNoMidPrice
	}
	return m.Prices.MidPrice(ctx)
}
