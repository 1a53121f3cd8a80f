package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// WaitMined 等待交易上链并记录 gas 消耗。
func WaitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction, logger *zap.Logger) (*types.Receipt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	cost := new(big.Int)
	if receipt.EffectiveGasPrice != nil {
		cost.Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	}
	logger.Info("transaction mined",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("status", receipt.Status),
		zap.Uint64("gasUsed", receipt.GasUsed),
		zap.String("costWei", cost.String()),
		zap.Stringer("block", receipt.BlockNumber))
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
