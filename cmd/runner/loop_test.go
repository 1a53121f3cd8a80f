package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arm-pricer-go/config"
	"arm-pricer-go/engine"
	"arm-pricer-go/gateway"
	"arm-pricer-go/infrastructure/alert"
	"arm-pricer-go/infrastructure/monitor"
	"arm-pricer-go/internal/risk"
)

type recordingPricer struct {
	mu   sync.Mutex
	opts []engine.PricingOptions
	err  error
	// running 用于检测重叠运行
	running bool
	overlap bool
}

func (p *recordingPricer) Run(_ context.Context, opts engine.PricingOptions) (engine.Decision, error) {
	p.mu.Lock()
	if p.running {
		p.overlap = true
	}
	p.running = true
	p.opts = append(p.opts, opts)
	p.mu.Unlock()

	time.Sleep(time.Millisecond)

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return engine.Decision{}, p.err
}

func (p *recordingPricer) calls() []engine.PricingOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.PricingOptions(nil), p.opts...)
}

func TestRunnerForceDryRun(t *testing.T) {
	p := &recordingPricer{}
	r := &runner{engine: p, logger: zap.NewNop(), forceDryRun: true}
	r.setOptions(engine.PricingOptions{Fee: decimal.NewFromInt(3)})

	require.NoError(t, r.runOnce(context.Background()))
	calls := p.calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].DryRun)
	assert.Equal(t, "3", calls[0].Fee.String())
}

func TestRunnerReloadAppliesToNextRun(t *testing.T) {
	p := &recordingPricer{}
	afterRuns := 0
	r := &runner{engine: p, logger: zap.NewNop(), afterRun: func() { afterRuns++ }}
	r.setOptions(engine.PricingOptions{Fee: decimal.NewFromInt(1)})
	require.NoError(t, r.runOnce(context.Background()))
	r.setOptions(engine.PricingOptions{Fee: decimal.NewFromInt(2)})
	require.NoError(t, r.runOnce(context.Background()))

	calls := p.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "1", calls[0].Fee.String())
	assert.Equal(t, "2", calls[1].Fee.String())
	assert.Equal(t, 2, afterRuns)
}

func TestLoopSurvivesFailures(t *testing.T) {
	p := &recordingPricer{err: errors.New("quote unavailable")}
	r := &runner{engine: p, logger: zap.NewNop()}

	triggers := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		triggers <- struct{}{}
	}
	close(triggers)

	require.NoError(t, r.loop(context.Background(), triggers))
	assert.Len(t, p.calls(), 3)
}

func TestLoopBreakerSkipsRunsAfterFailures(t *testing.T) {
	p := &recordingPricer{err: errors.New("rpc down")}
	mock := alert.NewMockChannel("mock")
	mon := monitor.New(monitor.DefaultConfig())
	alerts := alert.NewManager([]alert.Channel{mock}, time.Minute)
	pings := 0
	r := &runner{
		engine:   p,
		logger:   zap.NewNop(),
		afterRun: func() { pings++ },
		breaker:  newBreaker(config.BreakerConfig{Threshold: 2, CooldownSeconds: 3600}, alerts, mon, "lido", zap.NewNop()),
	}

	triggers := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		triggers <- struct{}{}
	}
	close(triggers)

	require.NoError(t, r.loop(context.Background(), triggers))
	assert.Len(t, p.calls(), 2, "runs after the breaker opens are skipped")
	assert.Equal(t, 5, pings, "watchdog is fed on skipped triggers too")
	assert.Equal(t, risk.StateOpen, r.breaker.State())
	rec := httptest.NewRecorder()
	mon.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `arm_pricer_breaker_state{arm="lido"} 1`)

	alerts0 := mock.GetAlerts()
	require.Len(t, alerts0, 1)
	assert.Equal(t, alert.LevelCritical, alerts0[0].Level)
	assert.Equal(t, "lido", alerts0[0].Fields["arm"])

	r.breaker.Reset()
	assert.Len(t, mock.GetAlerts(), 2, "reset announces the resume")
}

func TestLoopStopsOnCancel(t *testing.T) {
	r := &runner{engine: &recordingPricer{}, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.loop(ctx, make(chan struct{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTickerTriggersNeverOverlap(t *testing.T) {
	p := &recordingPricer{}
	r := &runner{engine: p, logger: zap.NewNop()}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_ = r.loop(ctx, tickerTriggers(ctx, 5*time.Millisecond))
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.False(t, p.overlap)
	assert.GreaterOrEqual(t, len(p.opts), 2)
}

func TestHeadTriggersEveryN(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	heads := make(chan gateway.Head)
	triggers := headTriggers(ctx, heads, 3, zap.NewNop())

	count := 0
	for i := uint64(1); i <= 6; i++ {
		heads <- gateway.Head{Number: i}
		select {
		case <-triggers:
			count++
			assert.Zero(t, i%3, "trigger on block %d", i)
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, 2, count)

	close(heads)
	_, ok := <-triggers
	assert.False(t, ok)
}

func TestTriggerCoalesces(t *testing.T) {
	ch := make(chan struct{}, 1)
	trigger(ch)
	trigger(ch)
	assert.Len(t, ch, 1)
}
