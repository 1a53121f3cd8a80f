// Package reference 提供外部参考价格：固定中间价、链上池子报价、聚合器报价。
//
// 所有报价都以"1 个基础资产值多少流动性资产"表示，精度 18。
package reference

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arm-pricer-go/fixedpoint"
)

var (
	// ErrQuoteUnavailable 来源暂时没有报价，可以换下一个来源。
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrRateLimited 重试后仍被限频，本次运行失败。
	ErrRateLimited = errors.New("rate limited")
	// ErrExchangeRateUnavailable 无法获取包装资产兑换率。
	ErrExchangeRateUnavailable = errors.New("exchange rate unavailable")
)

// Pair 基础资产/流动性资产。
type Pair struct {
	Base      common.Address
	Liquidity common.Address
}

// Quote 参考报价；Buy/Sell 可能未设置。
type Quote struct {
	Source string
	Mid    fixedpoint.Price
	Buy    fixedpoint.Price
	Sell   fixedpoint.Price
}

// HasSides 买卖两侧是否都有报价。
func (q Quote) HasSides() bool {
	return q.Buy.Valid() && q.Sell.Valid()
}

// Provider 参考价格来源。amount 为名义交易量（基础资产最小单位）。
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, pair Pair, amount *big.Int) (Quote, error)
}

// MidPrice 调用方直接给定的中间价。
type MidPrice struct {
	mid fixedpoint.Price
}

func NewMidPrice(mid decimal.Decimal) *MidPrice {
	return &MidPrice{mid: fixedpoint.FromDecimal(mid, fixedpoint.TokenScale)}
}

func (m *MidPrice) Name() string { return "mid" }

func (m *MidPrice) GetPrice(context.Context, Pair, *big.Int) (Quote, error) {
	if m.mid.Sign() <= 0 {
		return Quote{}, ErrQuoteUnavailable
	}
	return Quote{Source: m.Name(), Mid: m.mid}, nil
}
