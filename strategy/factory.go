package strategy

import (
	"errors"

	"arm-pricer-go/reference"
)

// Kind 策略类型。
type Kind string

const (
	KindFee    Kind = "fee"
	KindOffset Kind = "offset"
)

// StrategyFactory creates strategy instances by kind.
type StrategyFactory struct{}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{}
}

// CreateStrategy 按名称创建策略。
func (f *StrategyFactory) CreateStrategy(kind string) (Strategy, error) {
	switch Kind(kind) {
	case KindFee, "":
		return FeeStrategy{}, nil
	case KindOffset:
		return OffsetStrategy{}, nil
	default:
		return nil, errors.New("unknown strategy type: " + kind)
	}
}

// Select priceOffset 且参考价带卖价时用偏移策略，否则用费率策略。
func Select(priceOffset bool, ref reference.Quote) Strategy {
	if priceOffset && ref.Sell.Valid() {
		return OffsetStrategy{}
	}
	return FeeStrategy{}
}
