// Package fixedpoint 提供链上价格使用的定点整数运算。
//
// 所有链上数值都是按 10^scale 放大的整数；浮点数只用于展示。
package fixedpoint

import (
	"errors"
	"math/big"
)

const (
	// TokenScale 代币数量精度（18 位）。
	TokenScale = 18
	// PriceScale ARM 合约价格精度（36 位）。
	PriceScale = 36
	// BpsScale 1 bp = 10^-4。
	BpsScale = 4
)

var ErrDivideByZero = errors.New("divide by zero")

var ten = big.NewInt(10)

// Pow10 返回 10^n，n<0 时返回 1。
func Pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Scale 把 from 精度的整数转换到 to 精度；缩小精度时截断。
func Scale(v *big.Int, from, to int) *big.Int {
	if v == nil {
		return nil
	}
	switch {
	case to > from:
		return new(big.Int).Mul(v, Pow10(to-from))
	case to < from:
		return new(big.Int).Quo(v, Pow10(from-to))
	default:
		return new(big.Int).Set(v)
	}
}

// Invert 计算 10^digits / rate。
func Invert(rate *big.Int, digits int) (*big.Int, error) {
	if rate == nil || rate.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	return new(big.Int).Quo(Pow10(digits), rate), nil
}

// Abs 返回 |v| 的拷贝。
func Abs(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Abs(v)
}

// MulDiv 计算 a*b/c（截断）。
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() == 0 {
		return nil, ErrDivideByZero
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c), nil
}
