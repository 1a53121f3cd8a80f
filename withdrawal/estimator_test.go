package withdrawal

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"arm-pricer-go/monitor/logschema"
)

const day = 24 * time.Hour

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEstimator() *Estimator {
	e := NewEstimator()
	e.Now = func() time.Time { return fixedNow }
	return e
}

func req(id string, amount int64, age time.Duration) Request {
	return Request{ID: id, Amount: big.NewInt(amount), CreatedAt: fixedNow.Add(-age)}
}

func liq(available, required, pending int64) Liquidity {
	return Liquidity{Available: big.NewInt(available), Required: big.NewInt(required), PendingClaims: big.NewInt(pending)}
}

func TestEstimate(t *testing.T) {
	cases := []struct {
		name  string
		liq   Liquidity
		queue []Request
		want  time.Duration
	}{
		{"空队列取最大窗口", liq(0, 20, 0), nil, 14 * day},
		{"无需赎回", liq(0, 0, 0), []Request{req("a", 10, 2*day)}, day},
		{"流动性充足", liq(30, 20, 5), []Request{req("a", 10, 2*day)}, day},
		{"恰好覆盖", liq(0, 20, 0), []Request{req("a", 10, 10*day), req("b", 10, 2*day)}, 8 * day},
		{"边界请求按比例", liq(0, 15, 0), []Request{req("a", 10, 10*day), req("b", 10, 2*day)}, 576000 * time.Second},
		{"已成熟请求", liq(0, 10, 0), []Request{req("a", 100, 20*day)}, day},
		{"不足部分按最大窗口", liq(0, 20, 0), []Request{req("a", 10, 10*day)}, 9 * day},
		{"待领取先消耗可用量", liq(10, 10, 10), []Request{req("a", 10, 10*day)}, 4 * day},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := newTestEstimator().Estimate(c.liq, c.queue)
			if got.Period != c.want {
				t.Fatalf("period=%v want %v", got.Period, c.want)
			}
		})
	}
}

func TestEstimateExactCoverIsBetweenYoungestAndOldest(t *testing.T) {
	queue := []Request{req("young", 7, 1*day), req("old", 3, 12*day)}
	got := newTestEstimator().Estimate(liq(0, 10, 0), queue)
	oldest, youngest := 2*day, 13*day
	if got.Period <= oldest || got.Period >= youngest {
		t.Fatalf("period %v not in (%v, %v)", got.Period, oldest, youngest)
	}
	if got.Shortfall.Sign() != 0 || got.Used != 2 {
		t.Fatalf("unexpected estimate %+v", got)
	}
}

func TestEstimateDoesNotMutateQueue(t *testing.T) {
	queue := []Request{req("b", 10, 2*day), req("a", 10, 10*day)}
	newTestEstimator().Estimate(liq(0, 20, 0), queue)
	if queue[0].ID != "b" || queue[1].ID != "a" {
		t.Fatalf("queue reordered: %v %v", queue[0].ID, queue[1].ID)
	}
	if queue[0].Amount.Int64() != 10 {
		t.Fatalf("amount mutated")
	}
}

func TestEstimateProratesBoundary(t *testing.T) {
	got := newTestEstimator().Estimate(liq(0, 15, 0), []Request{req("a", 10, 10*day), req("b", 10, 2*day)})
	if got.Covered.Int64() != 15 || got.Used != 2 {
		t.Fatalf("covered=%s used=%d", got.Covered, got.Used)
	}
}

type stubQueue struct {
	reqs  []Request
	err   error
	calls int
}

func (s *stubQueue) Requests(context.Context) ([]Request, error) {
	s.calls++
	return s.reqs, s.err
}

type stubLiquidity struct {
	liq Liquidity
	err error
}

func (s stubLiquidity) Liquidity(context.Context) (Liquidity, error) { return s.liq, s.err }

func TestSourceSkipsQueueWhenLiquid(t *testing.T) {
	q := &stubQueue{err: errors.New("should not be called")}
	s := NewSource(q, stubLiquidity{liq: liq(100, 10, 0)})
	s.Estimator.Now = func() time.Time { return fixedNow }
	got, err := s.Estimate(context.Background())
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if got.Period != day || q.calls != 0 {
		t.Fatalf("period=%v calls=%d", got.Period, q.calls)
	}
}

func TestSourceUsesQueue(t *testing.T) {
	q := &stubQueue{reqs: []Request{req("a", 10, 10*day)}}
	s := NewSource(q, stubLiquidity{liq: liq(0, 10, 0)})
	s.Estimator.Now = func() time.Time { return fixedNow }
	got, err := s.Estimate(context.Background())
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if got.Period != 4*day {
		t.Fatalf("period=%v", got.Period)
	}

	s.Liquidity = stubLiquidity{err: errors.New("rpc")}
	if _, err := s.Estimate(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSourceLogsEstimate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	q := &stubQueue{reqs: []Request{req("a", 10, 10*day)}}
	s := NewSource(q, stubLiquidity{liq: liq(0, 10, 0)})
	s.Estimator.Now = func() time.Time { return fixedNow }
	s.Logger = zap.New(core)

	if _, err := s.Estimate(context.Background()); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	entries := logs.FilterMessage(logschema.EventWithdrawEstimate).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 estimate event, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["needed"] != "10" || ctx["covered"] != "10" || ctx["shortfall"] != "0" {
		t.Fatalf("unexpected fields %v", ctx)
	}
	if ctx["days"] != 4.0 || ctx["queued"] != int64(1) {
		t.Fatalf("days=%v queued=%v", ctx["days"], ctx["queued"])
	}
	if _, bad := ctx["schemaError"]; bad {
		t.Fatalf("schema error: %v", ctx["schemaError"])
	}
}
