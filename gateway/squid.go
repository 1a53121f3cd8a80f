package gateway

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"arm-pricer-go/internal/retry"
	"arm-pricer-go/withdrawal"
)

var _ withdrawal.Queue = (*SquidClient)(nil)

// SquidConfig 索引服务 GraphQL；ValidatorIDs 为空时不过滤验证人。
type SquidConfig struct {
	HTTPConfig
	ChainID      int64
	ValidatorIDs []string
	Limit        int
}

func SquidConfigDefaults() SquidConfig {
	return SquidConfig{
		HTTPConfig: HTTPConfig{
			BaseURL: "https://origin.squids.live/origin-squid/graphql",
			Timeout: 15 * time.Second,
			Retry:   retry.DefaultConfig(),
		},
		ChainID: 146,
		Limit:   100,
	}
}

// SquidClient 读取尚未完成的验证人提款请求。
type SquidClient struct {
	cfg    SquidConfig
	client *jsonClient
}

func NewSquidClient(cfg SquidConfig) *SquidClient {
	d := SquidConfigDefaults()
	applyHTTPDefaults(&cfg.HTTPConfig, d.HTTPConfig)
	if cfg.ChainID == 0 {
		cfg.ChainID = d.ChainID
	}
	if cfg.Limit == 0 {
		cfg.Limit = d.Limit
	}
	return &SquidClient{cfg: cfg, client: newJSONClient("squid", cfg.HTTPConfig, nil)}
}

const sfcWithdrawalsQuery = `query OutstandingWithdrawals($chainId: Int!, $limit: Int!, $validators: [String!]) {
  sfcWithdrawals(
    limit: $limit
    orderBy: wrID_ASC
    where: { withdrawnAt_isNull: true, chainId_eq: $chainId, toValidatorID_in: $validators }
  ) {
    id
    amount
    wrID
    toValidatorID
    createdAt
  }
}`

const sfcWithdrawalsAllQuery = `query OutstandingWithdrawals($chainId: Int!, $limit: Int!) {
  sfcWithdrawals(
    limit: $limit
    orderBy: wrID_ASC
    where: { withdrawnAt_isNull: true, chainId_eq: $chainId }
  ) {
    id
    amount
    wrID
    toValidatorID
    createdAt
  }
}`

type sfcWithdrawal struct {
	ID            string    `json:"id"`
	Amount        string    `json:"amount"`
	WrID          string    `json:"wrID"`
	ToValidatorID string    `json:"toValidatorID"`
	CreatedAt     time.Time `json:"createdAt"`
}

type sfcWithdrawalsResponse struct {
	Data struct {
		SfcWithdrawals []sfcWithdrawal `json:"sfcWithdrawals"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (c *SquidClient) Requests(ctx context.Context) ([]withdrawal.Request, error) {
	req := graphQLRequest{
		Query: sfcWithdrawalsAllQuery,
		Variables: map[string]any{
			"chainId": c.cfg.ChainID,
			"limit":   c.cfg.Limit,
		},
	}
	if len(c.cfg.ValidatorIDs) > 0 {
		req.Query = sfcWithdrawalsQuery
		req.Variables["validators"] = c.cfg.ValidatorIDs
	}
	var resp sfcWithdrawalsResponse
	if err := c.client.post(ctx, "", req, &resp); err != nil {
		return nil, err
	}
	if err := joinGraphQLErrors("squid", resp.Errors); err != nil {
		return nil, err
	}

	out := make([]withdrawal.Request, 0, len(resp.Data.SfcWithdrawals))
	for _, w := range resp.Data.SfcWithdrawals {
		amount, ok := new(big.Int).SetString(w.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("squid: withdrawal %s: invalid amount %q", w.ID, w.Amount)
		}
		out = append(out, withdrawal.Request{
			ID:          w.ID,
			ValidatorID: w.ToValidatorID,
			Amount:      amount,
			CreatedAt:   w.CreatedAt,
		})
	}
	return out, nil
}
