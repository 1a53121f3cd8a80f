package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"arm-pricer-go/internal/retry"
	"arm-pricer-go/reference"
)

var _ reference.SwapQuoter = (*OneInchClient)(nil)

// OneInchConfig 1inch swap API v5.2。
type OneInchConfig struct {
	HTTPConfig
	APIKey  string
	ChainID int64
}

func OneInchConfigDefaults() OneInchConfig {
	return OneInchConfig{
		HTTPConfig: HTTPConfig{
			BaseURL:     "https://api.1inch.dev/swap/v5.2",
			Timeout:     10 * time.Second,
			MinInterval: 800 * time.Millisecond,
			Retry:       retry.DefaultConfig(),
		},
		ChainID: 1,
	}
}

type OneInchClient struct {
	cfg    OneInchConfig
	client *jsonClient
}

func NewOneInchClient(cfg OneInchConfig) (*OneInchClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("1inch api key required")
	}
	d := OneInchConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.ChainID == 0 {
		cfg.ChainID = d.ChainID
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &OneInchClient{cfg: cfg, client: newJSONClient("1inch", cfg.HTTPConfig, headers)}, nil
}

func (c *OneInchClient) Name() string { return "1inch" }

type oneInchQuote struct {
	ToAmount string `json:"toAmount"`
}

// QuoteSwap GET /{chain}/quote。
func (c *OneInchClient) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	params := url.Values{
		"src":    {tokenIn.Hex()},
		"dst":    {tokenOut.Hex()},
		"amount": {amountIn.String()},
	}
	var resp oneInchQuote
	if err := c.client.get(ctx, fmt.Sprintf("/%d/quote", c.cfg.ChainID), params, &resp); err != nil {
		return nil, err
	}
	return parseAmount(c.Name(), resp.ToAmount)
}
