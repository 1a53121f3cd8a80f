// Package chain 封装定价用到的链上合约读写。
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// contract 按 ABI 打包 eth_call 并解包结果。
type contract struct {
	address common.Address
	abi     *abi.ABI
	caller  ethereum.ContractCaller
}

func (c contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

func (c contract) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

func (c contract) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(vals) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty result", method)
	}
	a, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, vals[0])
	}
	return a, nil
}

// ERC20 只读。
type ERC20 struct {
	contract
}

func NewERC20(address common.Address, caller ethereum.ContractCaller) *ERC20 {
	return &ERC20{contract{address: address, abi: ERC20ABI, caller: caller}}
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.callBig(ctx, "balanceOf", owner)
}
