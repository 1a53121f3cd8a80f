package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"arm-pricer-go/internal/retry"
	"arm-pricer-go/reference"
)

var _ reference.SwapQuoter = (*KyberClient)(nil)

// KyberConfig KyberSwap aggregator routes API。
type KyberConfig struct {
	HTTPConfig
	Chain    string
	ClientID string
	// ExcludedSources 排除 ARM 自身的流动性，避免自我参考。
	ExcludedSources []string
}

func KyberConfigDefaults() KyberConfig {
	return KyberConfig{
		HTTPConfig: HTTPConfig{
			BaseURL:     "https://aggregator-api.kyberswap.com",
			Timeout:     10 * time.Second,
			MinInterval: 800 * time.Millisecond,
			Retry:       retry.DefaultConfig(),
		},
		Chain:    "ethereum",
		ClientID: "arm-pricer",
	}
}

type KyberClient struct {
	cfg    KyberConfig
	client *jsonClient
}

func NewKyberClient(cfg KyberConfig) *KyberClient {
	d := KyberConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.Chain == "" {
		cfg.Chain = d.Chain
	}
	if cfg.ClientID == "" {
		cfg.ClientID = d.ClientID
	}
	return &KyberClient{
		cfg:    cfg,
		client: newJSONClient("kyber", cfg.HTTPConfig, map[string]string{"X-Client-Id": cfg.ClientID}),
	}
}

func (c *KyberClient) Name() string { return "kyber" }

type kyberRoutes struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		RouteSummary *struct {
			AmountOut string `json:"amountOut"`
		} `json:"routeSummary"`
	} `json:"data"`
}

// QuoteSwap GET /{chain}/api/v1/routes。
func (c *KyberClient) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	params := url.Values{
		"tokenIn":    {tokenIn.Hex()},
		"tokenOut":   {tokenOut.Hex()},
		"amountIn":   {amountIn.String()},
		"gasInclude": {"false"},
	}
	if len(c.cfg.ExcludedSources) > 0 {
		params.Set("excludedSources", strings.Join(c.cfg.ExcludedSources, ","))
	}
	var resp kyberRoutes
	if err := c.client.get(ctx, "/"+c.cfg.Chain+"/api/v1/routes", params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 || resp.Data.RouteSummary == nil {
		return nil, fmt.Errorf("kyber: code %d %s: %w", resp.Code, resp.Message, reference.ErrQuoteUnavailable)
	}
	return parseAmount(c.Name(), resp.Data.RouteSummary.AmountOut)
}
