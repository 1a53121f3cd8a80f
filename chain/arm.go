package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"arm-pricer-go/fixedpoint"
)

// sellRateDigits traderate0 是 36 位精度的倒数价格，取倒数需要 72 位。
const sellRateDigits = 2 * fixedpoint.PriceScale

var ErrNoSigner = errors.New("arm: no signer configured")

// ARM 报价合约。读取当前买卖价，并在配置了签名者时提交新价格。
type ARM struct {
	contract
	bound *bind.BoundContract
	opts  *bind.TransactOpts
}

func NewARM(address common.Address, caller ethereum.ContractCaller) *ARM {
	return &ARM{contract: contract{address: address, abi: ARMABI, caller: caller}}
}

// WithSigner 启用 SubmitPrices。
func (a *ARM) WithSigner(backend bind.ContractBackend, opts *bind.TransactOpts) *ARM {
	a.bound = bind.NewBoundContract(a.address, *a.abi, backend, backend, backend)
	a.opts = opts
	return a
}

func (a *ARM) Address() common.Address { return a.address }

// SellPrice 交易者买入基础资产的价格：1e72 / traderate0，精度 36。
func (a *ARM) SellPrice(ctx context.Context) (fixedpoint.Price, error) {
	rate, err := a.callBig(ctx, "traderate0")
	if err != nil {
		return fixedpoint.Price{}, err
	}
	inv, err := fixedpoint.Invert(rate, sellRateDigits)
	if err != nil {
		return fixedpoint.Price{}, fmt.Errorf("traderate0: %w", err)
	}
	return fixedpoint.New(inv, fixedpoint.PriceScale), nil
}

// BuyPrice traderate1，精度 36。
func (a *ARM) BuyPrice(ctx context.Context) (fixedpoint.Price, error) {
	rate, err := a.callBig(ctx, "traderate1")
	if err != nil {
		return fixedpoint.Price{}, err
	}
	return fixedpoint.New(rate, fixedpoint.PriceScale), nil
}

func (a *ARM) CrossPrice(ctx context.Context) (fixedpoint.Price, error) {
	v, err := a.callBig(ctx, "crossPrice")
	if err != nil {
		return fixedpoint.Price{}, err
	}
	return fixedpoint.New(v, fixedpoint.PriceScale), nil
}

func (a *ARM) LiquidityAsset(ctx context.Context) (common.Address, error) {
	return a.callAddress(ctx, "liquidityAsset")
}

func (a *ARM) BaseAsset(ctx context.Context) (common.Address, error) {
	return a.callAddress(ctx, "baseAsset")
}

// ActiveMarket 当前借贷市场适配器，零地址表示没有。
func (a *ARM) ActiveMarket(ctx context.Context) (common.Address, error) {
	return a.callAddress(ctx, "activeMarket")
}

func (a *ARM) Vault(ctx context.Context) (common.Address, error) {
	return a.callAddress(ctx, "vault")
}

// OutstandingWithdrawals withdrawsQueued - withdrawsClaimed。
func (a *ARM) OutstandingWithdrawals(ctx context.Context) (*big.Int, error) {
	queued, err := a.callBig(ctx, "withdrawsQueued")
	if err != nil {
		return nil, err
	}
	claimed, err := a.callBig(ctx, "withdrawsClaimed")
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(queued, claimed), nil
}

// SubmitPrices 调用 setPrices(buy, sell)，价格均为 36 位精度。
func (a *ARM) SubmitPrices(ctx context.Context, buy, sell fixedpoint.Price) (*types.Transaction, error) {
	if a.bound == nil || a.opts == nil {
		return nil, ErrNoSigner
	}
	opts := *a.opts
	opts.Context = ctx
	tx, err := a.bound.Transact(&opts, "setPrices",
		buy.Rescale(fixedpoint.PriceScale).Int(),
		sell.Rescale(fixedpoint.PriceScale).Int())
	if err != nil {
		return nil, fmt.Errorf("setPrices: %w", err)
	}
	return tx, nil
}
