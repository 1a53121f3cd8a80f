package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Price 是带精度的不可变定点数，所有运算返回新值。
// 零值表示"未设置"。
type Price struct {
	v     *big.Int
	scale int
}

// New 拷贝 v 构造 Price。
func New(v *big.Int, scale int) Price {
	if v == nil {
		return Price{}
	}
	return Price{v: new(big.Int).Set(v), scale: scale}
}

func FromInt64(v int64, scale int) Price {
	return Price{v: big.NewInt(v), scale: scale}
}

// One 返回 scale 精度下的 1。
func One(scale int) Price {
	return Price{v: Pow10(scale), scale: scale}
}

// FromDecimal 把十进制数截断到 scale 位。
func FromDecimal(d decimal.Decimal, scale int) Price {
	return Price{v: d.Shift(int32(scale)).BigInt(), scale: scale}
}

// FromBps 把基点数转换为 scale 精度的比例，例如 5bp@36 = 5e32。
func FromBps(bps decimal.Decimal, scale int) Price {
	return Price{v: bps.Shift(int32(scale - BpsScale)).BigInt(), scale: scale}
}

// Parse 解析十进制字符串，超出 scale 的位数被截断。
func Parse(s string, scale int) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return FromDecimal(d, scale), nil
}

func (p Price) Valid() bool { return p.v != nil }

func (p Price) Scale() int { return p.scale }

// Int 返回底层整数的拷贝；未设置时返回 nil。
func (p Price) Int() *big.Int {
	if p.v == nil {
		return nil
	}
	return new(big.Int).Set(p.v)
}

func (p Price) Sign() int {
	if p.v == nil {
		return 0
	}
	return p.v.Sign()
}

func (p Price) IsZero() bool { return p.Sign() == 0 }

// Rescale 转换到 to 精度。
func (p Price) Rescale(to int) Price {
	if p.v == nil {
		return Price{}
	}
	return Price{v: Scale(p.v, p.scale, to), scale: to}
}

// align 对齐精度；未设置的值按 0 处理。
func align(a, b Price) (*big.Int, *big.Int, int) {
	if a.v == nil {
		a = Price{v: new(big.Int), scale: a.scale}
	}
	if b.v == nil {
		b = Price{v: new(big.Int), scale: b.scale}
	}
	s := a.scale
	if b.scale > s {
		s = b.scale
	}
	return Scale(a.v, a.scale, s), Scale(b.v, b.scale, s), s
}

// Add 先对齐到较大的精度再相加。
func (p Price) Add(q Price) Price {
	x, y, s := align(p, q)
	return Price{v: x.Add(x, y), scale: s}
}

func (p Price) Sub(q Price) Price {
	x, y, s := align(p, q)
	return Price{v: x.Sub(x, y), scale: s}
}

// AbsDiff 返回 |p-q|。
func (p Price) AbsDiff(q Price) Price {
	d := p.Sub(q)
	d.v.Abs(d.v)
	return d
}

func (p Price) Cmp(q Price) int {
	x, y, _ := align(p, q)
	return x.Cmp(y)
}

// Equal 按数值比较，不区分精度。
func (p Price) Equal(q Price) bool {
	if p.v == nil || q.v == nil {
		return p.v == nil && q.v == nil
	}
	return p.Cmp(q) == 0
}

// MulDiv 返回 p*num/den，精度不变。
func (p Price) MulDiv(num, den *big.Int) (Price, error) {
	v, err := MulDiv(p.v, num, den)
	if err != nil {
		return Price{}, err
	}
	return Price{v: v, scale: p.scale}, nil
}

// Div 返回 p/q，结果保持 p 的精度。
func (p Price) Div(q Price) (Price, error) {
	if q.Sign() == 0 {
		return Price{}, ErrDivideByZero
	}
	return p.MulDiv(Pow10(q.scale), q.v)
}

func (p Price) Decimal() decimal.Decimal {
	if p.v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(p.v, int32(-p.scale))
}

// Float64 仅用于日志和指标。
func (p Price) Float64() float64 {
	return p.Decimal().InexactFloat64()
}

func (p Price) String() string {
	if p.v == nil {
		return "<unset>"
	}
	return p.Decimal().String()
}
