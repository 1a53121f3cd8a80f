package reference

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
)

// SwapQuoter 对一笔兑换询价，返回 tokenOut 的数量。
// 链上池子和各个聚合器都实现这个接口。
type SwapQuoter interface {
	Name() string
	QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// SwapProvider 用两笔询价得到买价和卖价：
// 买入腿 流动性->基础，卖出腿 基础->流动性，两腿按顺序执行。
type SwapProvider struct {
	Quoter SwapQuoter
	// FeeBps 来源自身的基础设施费用，从每条腿的输出中扣除。
	FeeBps decimal.Decimal
}

func NewSwapProvider(q SwapQuoter, feeBps decimal.Decimal) *SwapProvider {
	return &SwapProvider{Quoter: q, FeeBps: feeBps}
}

func (s *SwapProvider) Name() string { return s.Quoter.Name() }

func (s *SwapProvider) GetPrice(ctx context.Context, pair Pair, amount *big.Int) (Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%s: invalid amount", s.Name())
	}

	buyOut, err := s.leg(ctx, pair.Liquidity, pair.Base, amount)
	if err != nil {
		return Quote{}, fmt.Errorf("%s buy leg: %w", s.Name(), err)
	}
	sellOut, err := s.leg(ctx, pair.Base, pair.Liquidity, amount)
	if err != nil {
		return Quote{}, fmt.Errorf("%s sell leg: %w", s.Name(), err)
	}

	one := fixedpoint.Pow10(fixedpoint.TokenScale)
	// 花 amount 个流动性资产买到 buyOut 个基础资产
	buy, err := fixedpoint.MulDiv(amount, one, buyOut)
	if err != nil {
		return Quote{}, fmt.Errorf("%s buy leg: %w", s.Name(), ErrQuoteUnavailable)
	}
	sell, err := fixedpoint.MulDiv(sellOut, one, amount)
	if err != nil {
		return Quote{}, err
	}
	mid := new(big.Int).Add(buy, sell)
	mid.Quo(mid, big.NewInt(2))

	return Quote{
		Source: s.Name(),
		Mid:    fixedpoint.New(mid, fixedpoint.TokenScale),
		Buy:    fixedpoint.New(buy, fixedpoint.TokenScale),
		Sell:   fixedpoint.New(sell, fixedpoint.TokenScale),
	}, nil
}

func (s *SwapProvider) leg(ctx context.Context, in, out common.Address, amount *big.Int) (*big.Int, error) {
	got, err := s.Quoter.QuoteSwap(ctx, in, out, amount)
	if err != nil {
		return nil, err
	}
	if got == nil || got.Sign() <= 0 {
		return nil, ErrQuoteUnavailable
	}
	if s.FeeBps.IsPositive() {
		one := fixedpoint.Pow10(fixedpoint.TokenScale)
		fee := fixedpoint.FromBps(s.FeeBps, fixedpoint.TokenScale).Int()
		got, _ = fixedpoint.MulDiv(got, new(big.Int).Sub(one, fee), one)
		if got.Sign() <= 0 {
			return nil, ErrQuoteUnavailable
		}
	}
	return got, nil
}
