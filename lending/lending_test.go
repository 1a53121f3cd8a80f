package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/reference"
)

func p36(t *testing.T, s string) fixedpoint.Price {
	t.Helper()
	p, err := fixedpoint.Parse(s, fixedpoint.PriceScale)
	require.NoError(t, err)
	return p
}

func TestAPY(t *testing.T) {
	assert.InDelta(t, 0.0512675, APY(0.05), 1e-6)
	assert.Equal(t, 0.0, APY(0))
}

func TestMinBuyPrice(t *testing.T) {
	floor := p36(t, "0.99")

	got := MinBuyPrice(0.05, 15*24*time.Hour, floor)
	assert.Equal(t, fixedpoint.PriceScale, got.Scale())
	assert.InDelta(t, 0.997997, got.Float64(), 1e-6)

	// 收益率很高时使用下限
	got = MinBuyPrice(1.0, 365*24*time.Hour, floor)
	assert.True(t, got.Equal(floor))

	got = MinBuyPrice(0, 15*24*time.Hour, floor)
	assert.True(t, got.Equal(fixedpoint.One(fixedpoint.PriceScale)))
}

func TestMinBuyPriceDegenerateAPY(t *testing.T) {
	floor := p36(t, "0.99")
	for _, apr := range []float64{-365, -400} {
		assert.NotPanics(t, func() {
			got := MinBuyPrice(APY(apr), 15*24*time.Hour, floor)
			assert.True(t, got.Equal(floor), "apr %v", apr)
		})
	}
}

func TestMaxBuyPrice(t *testing.T) {
	mid := p36(t, "0.998")

	got, contradiction := MaxBuyPrice(mid, p36(t, "0.999"), DefaultMaxBuyPremium)
	assert.False(t, contradiction)
	assert.Equal(t, "0.99800998", got.String())

	got, contradiction = MaxBuyPrice(mid, p36(t, "0.997"), DefaultMaxBuyPremium)
	assert.True(t, contradiction)
	assert.Equal(t, "0.997", got.String())

	// 相等也视为矛盾
	got, contradiction = MaxBuyPrice(mid, p36(t, "0.99800998"), DefaultMaxBuyPremium)
	assert.True(t, contradiction)
	assert.Equal(t, "0.99800998", got.String())
}

type stubMarket struct {
	apr      float64
	aprErr   error
	mid      fixedpoint.Price
	midErr   error
	aprCalls int
}

func (s *stubMarket) AnnualRate(context.Context) (float64, error) {
	s.aprCalls++
	return s.apr, s.aprErr
}

func (s *stubMarket) MidPrice(context.Context) (fixedpoint.Price, error) {
	return s.mid, s.midErr
}

type fixedHolding time.Duration

func (h fixedHolding) HoldingPeriod(context.Context) (time.Duration, error) {
	return time.Duration(h), nil
}

func TestCalculatorExplicitBoundsSkipMarket(t *testing.T) {
	m := &stubMarket{apr: 0.05}
	c := NewCalculator(m, nil, DefaultConfig(), nil)

	in := Input{MinBuy: p36(t, "0.995"), MaxBuy: p36(t, "0.998")}
	b, err := c.Bounds(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, m.aprCalls)
	assert.False(t, b.Derived)
	assert.Equal(t, "0.995", b.MinBuy.String())
	assert.Equal(t, "0.998", b.MaxBuy.String())
}

func TestCalculatorDerivesBounds(t *testing.T) {
	m := &stubMarket{apr: 0.05, midErr: ErrNoMidPrice}
	c := NewCalculator(m, fixedHolding(15*24*time.Hour), Config{}, nil)

	b, err := c.Bounds(context.Background(), Input{ReferenceMid: p36(t, "0.998")})
	require.NoError(t, err)
	assert.True(t, b.Derived)
	assert.Equal(t, 15*24*time.Hour, b.HoldingPeriod)
	assert.InDelta(t, 0.0512675, b.APY, 1e-6)
	assert.InDelta(t, 0.997947, b.MinBuy.Float64(), 1e-5)
	// mid*(1+0.00001) 高于最低买价
	assert.True(t, b.Contradiction)
	assert.True(t, b.MaxBuy.Equal(b.MinBuy))
}

func TestCalculatorUsesMarketMid(t *testing.T) {
	m := &stubMarket{apr: 0.05, mid: p36(t, "0.99")}
	c := NewCalculator(m, nil, DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{ReferenceMid: p36(t, "0.998")})
	require.NoError(t, err)
	assert.Equal(t, DefaultHoldingPeriod, b.HoldingPeriod)
	assert.False(t, b.Contradiction)
	assert.Equal(t, "0.9900099", b.MaxBuy.String())
}

func TestCalculatorExplicitMinOnly(t *testing.T) {
	m := &stubMarket{apr: 0.05, mid: p36(t, "0.99")}
	c := NewCalculator(m, nil, DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{MinBuy: p36(t, "0.9995")})
	require.NoError(t, err)
	assert.Equal(t, "0.9995", b.MinBuy.String())
	assert.Equal(t, "0.9900099", b.MaxBuy.String())
}

type failingHolding struct{ calls int }

func (h *failingHolding) HoldingPeriod(context.Context) (time.Duration, error) {
	h.calls++
	return 0, errors.New("squid down")
}

func TestCalculatorExplicitMinSkipsHolding(t *testing.T) {
	m := &stubMarket{apr: 0.05, mid: p36(t, "0.99")}
	h := &failingHolding{}
	c := NewCalculator(m, h, DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{MinBuy: p36(t, "0.9995")})
	require.NoError(t, err)
	assert.Zero(t, h.calls)
	assert.Zero(t, b.HoldingPeriod)
	assert.Equal(t, "0.9995", b.MinBuy.String())
	assert.Equal(t, "0.9900099", b.MaxBuy.String())

	// 需要推导最低买价时持有期失败仍然中止
	_, err = c.Bounds(context.Background(), Input{})
	require.ErrorContains(t, err, "squid down")
	assert.Equal(t, 1, h.calls)
}

func TestCalculatorNoActiveMarket(t *testing.T) {
	m := &stubMarket{aprErr: ErrNoActiveMarket}
	c := NewCalculator(m, nil, DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{})
	require.NoError(t, err)
	assert.False(t, b.Derived)
	assert.False(t, b.MinBuy.Valid())
	assert.False(t, b.MaxBuy.Valid())
}

func TestCalculatorRateError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCalculator(&stubMarket{aprErr: boom}, nil, DefaultConfig(), nil)

	_, err := c.Bounds(context.Background(), Input{})
	require.ErrorIs(t, err, boom)
}

type stubLocator struct{ addr common.Address }

func (s stubLocator) ActiveMarket(context.Context) (common.Address, error) { return s.addr, nil }

type stubRates struct{ seen common.Address }

func (s *stubRates) SupplyAPR(_ context.Context, market common.Address) (float64, error) {
	s.seen = market
	return 0.04, nil
}

func TestMarketResolvesUnderlying(t *testing.T) {
	wrapper := common.HexToAddress("0x01")
	underlying := common.HexToAddress("0x02")
	rates := &stubRates{}
	m := &Market{
		Locator: stubLocator{addr: wrapper},
		Underlying: func(_ context.Context, w common.Address) (common.Address, error) {
			require.Equal(t, wrapper, w)
			return underlying, nil
		},
		Rates: rates,
	}

	apr, err := m.AnnualRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.04, apr)
	assert.Equal(t, underlying, rates.seen)

	_, err = m.MidPrice(context.Background())
	assert.ErrorIs(t, err, ErrNoMidPrice)
}

func TestMarketZeroAddress(t *testing.T) {
	m := &Market{Locator: stubLocator{}, Rates: &stubRates{}}
	_, err := m.AnnualRate(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveMarket)
}

func TestMarketOverride(t *testing.T) {
	fixed := common.HexToAddress("0x03")
	rates := &stubRates{}
	m := &Market{Override: fixed, Rates: rates}
	_, err := m.AnnualRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, rates.seen)
}

func TestCalculatorInputOverrides(t *testing.T) {
	m := &stubMarket{apr: 0.05, mid: p36(t, "0.99")}
	c := NewCalculator(m, fixedHolding(3*24*time.Hour), DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{
		HoldingPeriod: 30 * 24 * time.Hour,
		Floor:         decimal.NewNullDecimal(decimal.RequireFromString("0.9999")),
		Premium:       decimal.NewNullDecimal(decimal.RequireFromString("0.001")),
	})
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, b.HoldingPeriod)
	assert.Equal(t, "0.9999", b.MinBuy.String())
	assert.Equal(t, "0.99099", b.MaxBuy.String())
}

type stubAssets struct{ base, liquidity common.Address }

func (s stubAssets) LiquidityAsset(context.Context) (common.Address, error) { return s.liquidity, nil }
func (s stubAssets) BaseAsset(context.Context) (common.Address, error)      { return s.base, nil }

type stubProvider struct {
	quote  reference.Quote
	err    error
	pair   reference.Pair
	amount *big.Int
}

func (s *stubProvider) Name() string { return "fly" }

func (s *stubProvider) GetPrice(_ context.Context, pair reference.Pair, amount *big.Int) (reference.Quote, error) {
	s.pair, s.amount = pair, amount
	return s.quote, s.err
}

func TestQuoteMidPrice(t *testing.T) {
	assets := stubAssets{base: common.HexToAddress("0xb1"), liquidity: common.HexToAddress("0xa1")}
	amount := big.NewInt(1000)

	cases := []struct {
		name    string
		quote   reference.Quote
		err     error
		want    string
		wantErr error
	}{
		{"中间价", reference.Quote{Mid: p36(t, "0.9987")}, nil, "0.9987", nil},
		{"来源失败", reference.Quote{}, reference.ErrRateLimited, "", reference.ErrRateLimited},
		{"没有中间价", reference.Quote{}, nil, "", reference.ErrQuoteUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := &stubProvider{quote: c.quote, err: c.err}
			q := &QuoteMidPrice{Provider: p, Assets: assets, Amount: amount}
			got, err := q.MidPrice(context.Background())
			assert.Equal(t, reference.Pair{Base: assets.base, Liquidity: assets.liquidity}, p.pair)
			assert.Same(t, amount, p.amount)
			if c.wantErr != nil {
				require.ErrorIs(t, err, c.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got.String())
		})
	}
}

func TestCalculatorUsesQuotedMarketPrice(t *testing.T) {
	p := &stubProvider{quote: reference.Quote{Mid: p36(t, "0.99")}}
	m := &Market{
		Override: common.HexToAddress("0xc1"),
		Rates:    &stubRates{},
		Prices:   &QuoteMidPrice{Provider: p, Assets: stubAssets{}, Amount: big.NewInt(1)},
	}
	c := NewCalculator(m, nil, DefaultConfig(), nil)

	b, err := c.Bounds(context.Background(), Input{MinBuy: p36(t, "0.9995"), ReferenceMid: p36(t, "0.5")})
	require.NoError(t, err)
	assert.Equal(t, "0.9900099", b.MaxBuy.String())
}
