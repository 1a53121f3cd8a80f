package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arm-pricer-go/internal/retry"
)

// SiloConfig Silo v2 detailed-vault API。
type SiloConfig struct {
	HTTPConfig
	Network string
}

func SiloConfigDefaults() SiloConfig {
	return SiloConfig{
		HTTPConfig: HTTPConfig{
			BaseURL: "https://v2.silo.finance/api",
			Timeout: 10 * time.Second,
			Retry:   retry.DefaultConfig(),
		},
		Network: "sonic",
	}
}

// SiloClient 读取 Silo 市场的供应年化利率。
type SiloClient struct {
	cfg    SiloConfig
	client *jsonClient
}

func NewSiloClient(cfg SiloConfig) *SiloClient {
	d := SiloConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.Network == "" {
		cfg.Network = d.Network
	}
	return &SiloClient{cfg: cfg, client: newJSONClient("silo", cfg.HTTPConfig, nil)}
}

type siloVault struct {
	// 18 位精度的 APR，可能是字符串或数字
	SupplyApr *decimal.Decimal `json:"supplyApr"`
}

// SupplyAPR 返回小数形式的 APR（0.05 = 5%）。
func (c *SiloClient) SupplyAPR(ctx context.Context, market common.Address) (float64, error) {
	var resp siloVault
	path := fmt.Sprintf("/detailed-vault/%s-%s", c.cfg.Network, market.Hex())
	if err := c.client.get(ctx, path, nil, &resp); err != nil {
		return 0, err
	}
	if resp.SupplyApr == nil {
		return 0, errors.New("silo: response missing supplyApr")
	}
	return resp.SupplyApr.Shift(-18).InexactFloat64(), nil
}

// MorphoConfig Morpho GraphQL API。
type MorphoConfig struct {
	HTTPConfig
	ChainID int64
}

func MorphoConfigDefaults() MorphoConfig {
	return MorphoConfig{
		HTTPConfig: HTTPConfig{
			BaseURL: "https://api.morpho.org",
			Timeout: 10 * time.Second,
			Retry:   retry.DefaultConfig(),
		},
		ChainID: 1,
	}
}

// MorphoClient 读取 Morpho vault 的周净收益率。
type MorphoClient struct {
	cfg    MorphoConfig
	client *jsonClient
}

func NewMorphoClient(cfg MorphoConfig) *MorphoClient {
	d := MorphoConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.ChainID == 0 {
		cfg.ChainID = d.ChainID
	}
	return &MorphoClient{cfg: cfg, client: newJSONClient("morpho", cfg.HTTPConfig, nil)}
}

const morphoVaultQuery = `query VaultApy($address: String!, $chainId: Int) {
  vaultByAddress(address: $address, chainId: $chainId) {
    address
    state {
      weeklyNetApy
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

func joinGraphQLErrors(provider string, errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]error, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, errors.New(e.Message))
	}
	return fmt.Errorf("%s: graphql: %w", provider, errors.Join(msgs...))
}

type morphoVaultResponse struct {
	Data struct {
		VaultByAddress *struct {
			Address string `json:"address"`
			State   struct {
				WeeklyNetApy *float64 `json:"weeklyNetApy"`
			} `json:"state"`
		} `json:"vaultByAddress"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// SupplyAPR 返回 weeklyNetApy，按 APR 使用（再按日复利换算）。
func (c *MorphoClient) SupplyAPR(ctx context.Context, vault common.Address) (float64, error) {
	req := graphQLRequest{
		Query: morphoVaultQuery,
		Variables: map[string]any{
			"address": vault.Hex(),
			"chainId": c.cfg.ChainID,
		},
	}
	var resp morphoVaultResponse
	if err := c.client.post(ctx, "/graphql", req, &resp); err != nil {
		return 0, err
	}
	if err := joinGraphQLErrors("morpho", resp.Errors); err != nil {
		return 0, err
	}
	v := resp.Data.VaultByAddress
	if v == nil || v.State.WeeklyNetApy == nil {
		return 0, fmt.Errorf("morpho: vault %s not found", vault.Hex())
	}
	return *v.State.WeeklyNetApy, nil
}
