package withdrawal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/monitor/logschema"
)

// Queue 提款请求来源，顺序不作要求。
type Queue interface {
	Requests(ctx context.Context) ([]Request, error)
}

// LiquiditySource 读取当前流动性快照。
type LiquiditySource interface {
	Liquidity(ctx context.Context) (Liquidity, error)
}

// Source 组合队列和流动性，给出持有期。每次估算都记录 withdraw_estimate 事件。
type Source struct {
	Queue     Queue
	Liquidity LiquiditySource
	Estimator *Estimator
	Logger    *zap.Logger
}

func NewSource(q Queue, l LiquiditySource) *Source {
	return &Source{Queue: q, Liquidity: l, Estimator: NewEstimator()}
}

// Estimate 流动性充足时不读取队列。
func (s *Source) Estimate(ctx context.Context) (Estimate, error) {
	liq, err := s.Liquidity.Liquidity(ctx)
	if err != nil {
		return Estimate{}, fmt.Errorf("read liquidity: %w", err)
	}
	var queue []Request
	if liq.Required != nil && liq.Required.Sign() != 0 && liq.Needed().Sign() > 0 {
		if queue, err = s.Queue.Requests(ctx); err != nil {
			return Estimate{}, fmt.Errorf("read withdrawal queue: %w", err)
		}
	}
	est := s.Estimator.Estimate(liq, queue)
	logger.Event(s.Logger, logschema.EventWithdrawEstimate, map[string]interface{}{
		"needed":    est.Needed.String(),
		"covered":   est.Covered.String(),
		"shortfall": est.Shortfall.String(),
		"used":      est.Used,
		"queued":    len(queue),
		"days":      est.Days(),
	})
	return est, nil
}

// HoldingPeriod 只返回估算的持有期。
func (s *Source) HoldingPeriod(ctx context.Context) (time.Duration, error) {
	est, err := s.Estimate(ctx)
	if err != nil {
		return 0, err
	}
	return est.Period, nil
}
