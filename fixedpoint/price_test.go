package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	p, err := Parse("0.9995", PriceScale)
	require.NoError(t, err)
	assert.Equal(t, PriceScale, p.Scale())
	want, _ := new(big.Int).SetString("999500000000000000000000000000000000", 10)
	assert.Equal(t, 0, p.Int().Cmp(want))
	assert.Equal(t, "0.9995", p.String())

	_, err = Parse("abc", PriceScale)
	assert.Error(t, err)
}

func TestParseTruncates(t *testing.T) {
	p, err := Parse("1.23456789", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), p.Int().Int64())
}

func TestFromBps(t *testing.T) {
	// 5bp@32 -> 5e28，5bp@36 -> 5e32
	p := FromBps(decimal.NewFromInt(5), PriceScale)
	assert.Equal(t, 0, p.Int().Cmp(new(big.Int).Mul(big.NewInt(5), Pow10(32))))

	frac := FromBps(decimal.RequireFromString("0.5"), TokenScale)
	assert.Equal(t, 0, frac.Int().Cmp(new(big.Int).Mul(big.NewInt(5), Pow10(13))))
}

func TestArithmeticAlignsScales(t *testing.T) {
	a := FromInt64(1, 0)
	b, _ := Parse("0.5", TokenScale)
	sum := a.Add(b)
	assert.Equal(t, TokenScale, sum.Scale())
	assert.Equal(t, "1.5", sum.String())
	assert.Equal(t, "0.5", a.Sub(b).String())
	assert.Equal(t, "0.5", b.AbsDiff(a).String())
	assert.Equal(t, 1, a.Cmp(b))
	assert.True(t, One(PriceScale).Equal(One(TokenScale)))
}

func TestImmutability(t *testing.T) {
	raw := big.NewInt(100)
	p := New(raw, 2)
	raw.SetInt64(5)
	assert.Equal(t, "1", p.String())

	out := p.Int()
	out.SetInt64(7)
	assert.Equal(t, "1", p.String())

	_ = p.Add(FromInt64(1, 2))
	assert.Equal(t, "1", p.String())
}

func TestDiv(t *testing.T) {
	price, _ := Parse("1.2", PriceScale)
	rate, _ := Parse("1.2", TokenScale)
	out, err := price.Div(rate)
	require.NoError(t, err)
	assert.Equal(t, PriceScale, out.Scale())
	assert.Equal(t, "1", out.String())

	_, err = price.Div(FromInt64(0, TokenScale))
	assert.True(t, errors.Is(err, ErrDivideByZero))
}

func TestUnset(t *testing.T) {
	var p Price
	assert.False(t, p.Valid())
	assert.Nil(t, p.Int())
	assert.Equal(t, "<unset>", p.String())
	assert.False(t, p.Rescale(PriceScale).Valid())
	assert.True(t, p.Equal(Price{}))
	assert.False(t, p.Equal(One(2)))
}
