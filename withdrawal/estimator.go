// Package withdrawal 估算从验证人提款队列拿到流动性需要的时间。
package withdrawal

import (
	"math/big"
	"sort"
	"time"
)

const (
	DefaultMaturation = 14 * 24 * time.Hour
	DefaultMinPeriod  = 24 * time.Hour
)

// Request 队列中尚未完成的提款请求。
type Request struct {
	ID          string
	ValidatorID string
	Amount      *big.Int
	CreatedAt   time.Time
}

// Liquidity 当前流动性快照（单位：代币最小单位）。
type Liquidity struct {
	// Available 马上可用的流动性资产。
	Available *big.Int
	// Required ARM 持有、需要赎回的基础资产。
	Required *big.Int
	// PendingClaims 已排队但未领取的赎回，会先消耗 Available。
	PendingClaims *big.Int
}

// Needed 需要从提款队列补足的数量：Required + PendingClaims - Available。
func (l Liquidity) Needed() *big.Int {
	n := new(big.Int)
	if l.Required != nil {
		n.Add(n, l.Required)
	}
	if l.PendingClaims != nil {
		n.Add(n, l.PendingClaims)
	}
	if l.Available != nil {
		n.Sub(n, l.Available)
	}
	return n
}

// Estimate 估算结果。
type Estimate struct {
	Period    time.Duration
	Needed    *big.Int
	Covered   *big.Int
	Shortfall *big.Int
	// Used 实际用到的请求数，边界请求按比例计入。
	Used int
}

// Days 持有期天数（小数）。
func (e Estimate) Days() float64 {
	return e.Period.Hours() / 24
}

// Estimator 按金额加权平均剩余成熟时间。
type Estimator struct {
	Maturation time.Duration
	MinPeriod  time.Duration
	Now        func() time.Time
}

func NewEstimator() *Estimator {
	return &Estimator{Maturation: DefaultMaturation, MinPeriod: DefaultMinPeriod, Now: time.Now}
}

func (e *Estimator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Estimate 不修改 queue。
func (e *Estimator) Estimate(liq Liquidity, queue []Request) Estimate {
	needed := liq.Needed()
	out := Estimate{
		Period:    e.MinPeriod,
		Needed:    needed,
		Covered:   new(big.Int),
		Shortfall: new(big.Int),
	}
	if liq.Required == nil || liq.Required.Sign() == 0 || needed.Sign() <= 0 {
		return out
	}

	sorted := make([]Request, len(queue))
	copy(sorted, queue)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	now := e.now()
	weighted := new(big.Int) // sum(amount * seconds)
	remaining := new(big.Int).Set(needed)
	for _, req := range sorted {
		if remaining.Sign() <= 0 {
			break
		}
		if req.Amount == nil || req.Amount.Sign() <= 0 {
			continue
		}
		take := req.Amount
		if take.Cmp(remaining) > 0 {
			take = remaining
		}
		left := req.CreatedAt.Add(e.Maturation).Sub(now)
		if left < 0 {
			left = 0
		}
		weighted.Add(weighted, new(big.Int).Mul(new(big.Int).Set(take), big.NewInt(int64(left/time.Second))))
		out.Covered.Add(out.Covered, take)
		remaining = new(big.Int).Sub(remaining, take)
		out.Used++
	}
	if remaining.Sign() > 0 {
		out.Shortfall.Set(remaining)
		weighted.Add(weighted, new(big.Int).Mul(remaining, big.NewInt(int64(e.Maturation/time.Second))))
	}

	secs := new(big.Int).Quo(weighted, needed)
	period := time.Duration(secs.Int64()) * time.Second
	if period < e.MinPeriod {
		period = e.MinPeriod
	}
	if period > e.Maturation {
		period = e.Maturation
	}
	out.Period = period
	return out
}
