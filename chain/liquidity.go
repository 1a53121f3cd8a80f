package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"arm-pricer-go/withdrawal"
)

var _ withdrawal.LiquiditySource = (*VaultLiquidity)(nil)

// VaultLiquidity 读取 vault 与 ARM 的余额和赎回队列，得到流动性快照。
type VaultLiquidity struct {
	arm       *ARM
	vault     contract
	liquidity *ERC20
	base      *ERC20
}

func NewVaultLiquidity(arm *ARM, vault, liquidityToken, baseToken common.Address, caller ethereum.ContractCaller) *VaultLiquidity {
	return &VaultLiquidity{
		arm:       arm,
		vault:     contract{address: vault, abi: VaultABI, caller: caller},
		liquidity: NewERC20(liquidityToken, caller),
		base:      NewERC20(baseToken, caller),
	}
}

// Liquidity
//   - Available: vault 持有的流动性代币
//   - PendingClaims: vault 已排队未领取的赎回
//   - Required: ARM 的基础资产余额扣除 ARM 自身未领取的赎回
func (v *VaultLiquidity) Liquidity(ctx context.Context) (withdrawal.Liquidity, error) {
	available, err := v.liquidity.BalanceOf(ctx, v.vault.address)
	if err != nil {
		return withdrawal.Liquidity{}, err
	}
	meta, err := v.vault.call(ctx, "withdrawalQueueMetadata")
	if err != nil {
		return withdrawal.Liquidity{}, err
	}
	if len(meta) < 3 {
		return withdrawal.Liquidity{}, fmt.Errorf("withdrawalQueueMetadata: got %d values", len(meta))
	}
	queued, ok1 := meta[0].(*big.Int)
	claimed, ok2 := meta[2].(*big.Int)
	if !ok1 || !ok2 {
		return withdrawal.Liquidity{}, fmt.Errorf("withdrawalQueueMetadata: unexpected types")
	}

	baseBal, err := v.base.BalanceOf(ctx, v.arm.Address())
	if err != nil {
		return withdrawal.Liquidity{}, err
	}
	outstanding, err := v.arm.OutstandingWithdrawals(ctx)
	if err != nil {
		return withdrawal.Liquidity{}, err
	}
	required := new(big.Int).Sub(baseBal, outstanding)
	if required.Sign() < 0 {
		required.SetInt64(0)
	}
	return withdrawal.Liquidity{
		Available:     available,
		Required:      required,
		PendingClaims: new(big.Int).Sub(queued, claimed),
	}, nil
}
