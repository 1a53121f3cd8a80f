package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/reference"
)

var (
	_ reference.SwapQuoter         = (*CurvePool)(nil)
	_ reference.ExchangeRateSource = (*ERC4626)(nil)
)

// CurvePool 通过 get_dy 询价；Coins 为代币到池子下标的映射。
type CurvePool struct {
	contract
	Coins map[common.Address]int64
}

func NewCurvePool(address common.Address, caller ethereum.ContractCaller, coins map[common.Address]int64) *CurvePool {
	return &CurvePool{contract: contract{address: address, abi: CurvePoolABI, caller: caller}, Coins: coins}
}

func (p *CurvePool) Name() string { return "curve" }

func (p *CurvePool) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	i, ok := p.Coins[tokenIn]
	if !ok {
		return nil, fmt.Errorf("curve: %s not in pool: %w", tokenIn.Hex(), reference.ErrQuoteUnavailable)
	}
	j, ok := p.Coins[tokenOut]
	if !ok {
		return nil, fmt.Errorf("curve: %s not in pool: %w", tokenOut.Hex(), reference.ErrQuoteUnavailable)
	}
	return p.callBig(ctx, "get_dy", big.NewInt(i), big.NewInt(j), amountIn)
}

// ERC4626 包装资产 vault。
type ERC4626 struct {
	contract
}

func NewERC4626(address common.Address, caller ethereum.ContractCaller) *ERC4626 {
	return &ERC4626{contract{address: address, abi: ERC4626ABI, caller: caller}}
}

// ExchangeRate 每份额对应的底层资产，18 位精度。
func (v *ERC4626) ExchangeRate(ctx context.Context) (fixedpoint.Price, error) {
	one := fixedpoint.Pow10(fixedpoint.TokenScale)
	assets, err := v.callBig(ctx, "convertToAssets", one)
	if err != nil {
		return fixedpoint.Price{}, err
	}
	return fixedpoint.New(assets, fixedpoint.TokenScale), nil
}

// MarketWrapper ARM 的借贷市场适配器。
type MarketWrapper struct {
	contract
}

func NewMarketWrapper(address common.Address, caller ethereum.ContractCaller) *MarketWrapper {
	return &MarketWrapper{contract{address: address, abi: MarketWrapperABI, caller: caller}}
}

// Market 底层借贷市场地址。
func (m *MarketWrapper) Market(ctx context.Context) (common.Address, error) {
	return m.callAddress(ctx, "market")
}
