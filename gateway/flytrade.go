package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arm-pricer-go/internal/retry"
	"arm-pricer-go/reference"
)

var _ reference.SwapQuoter = (*FlyTradeClient)(nil)

// FlyTradeConfig fly.trade 聚合器。
type FlyTradeConfig struct {
	HTTPConfig
	Network string
	// Swapper 询价时使用的 from/to 地址。
	Swapper  common.Address
	Slippage string
	// LiquiditySources 允许的流动性来源，应去掉 ARM 自身。
	LiquiditySources []string
	// OutDecimals amountOut 的小数位数。
	OutDecimals int
}

func FlyTradeConfigDefaults() FlyTradeConfig {
	return FlyTradeConfig{
		HTTPConfig: HTTPConfig{
			BaseURL:     "https://api.fly.trade/aggregator",
			Timeout:     10 * time.Second,
			MinInterval: 800 * time.Millisecond,
			Retry:       retry.DefaultConfig(),
		},
		Network:     "sonic",
		Slippage:    "0.005",
		OutDecimals: 18,
	}
}

type FlyTradeClient struct {
	cfg    FlyTradeConfig
	client *jsonClient
}

func NewFlyTradeClient(cfg FlyTradeConfig) *FlyTradeClient {
	d := FlyTradeConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.Network == "" {
		cfg.Network = d.Network
	}
	if cfg.Slippage == "" {
		cfg.Slippage = d.Slippage
	}
	if cfg.OutDecimals == 0 {
		cfg.OutDecimals = d.OutDecimals
	}
	return &FlyTradeClient{cfg: cfg, client: newJSONClient("fly", cfg.HTTPConfig, nil)}
}

func (c *FlyTradeClient) Name() string { return "fly" }

type flyQuote struct {
	ID        string          `json:"id"`
	AmountOut decimal.Decimal `json:"amountOut"`
}

// QuoteSwap GET /quote；amountOut 是带小数的字符串。
func (c *FlyTradeClient) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	params := url.Values{
		"network":          {c.cfg.Network},
		"fromTokenAddress": {tokenIn.Hex()},
		"toTokenAddress":   {tokenOut.Hex()},
		"sellAmount":       {amountIn.String()},
		"fromAddress":      {c.cfg.Swapper.Hex()},
		"toAddress":        {c.cfg.Swapper.Hex()},
		"slippage":         {c.cfg.Slippage},
		"gasless":          {"false"},
	}
	if len(c.cfg.LiquiditySources) > 0 {
		params.Set("liquiditySources", strings.Join(c.cfg.LiquiditySources, ","))
	}
	var resp flyQuote
	if err := c.client.get(ctx, "/quote", params, &resp); err != nil {
		return nil, err
	}
	out := resp.AmountOut.Shift(int32(c.cfg.OutDecimals)).BigInt()
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("fly: quote %s: %w", resp.ID, reference.ErrQuoteUnavailable)
	}
	return out, nil
}
