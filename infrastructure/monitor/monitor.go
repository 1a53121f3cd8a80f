package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 运行结果标签
const (
	OutcomeSubmitted = "submitted"
	OutcomeUnchanged = "unchanged"
	OutcomeDryRun    = "dry_run"
	OutcomeFailed    = "failed"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 价格指标（按 ARM 区分）
	referencePrice *prometheus.GaugeVec
	targetPrice    *prometheus.GaugeVec
	currentPrice   *prometheus.GaugeVec
	priceDiffBps   *prometheus.GaugeVec

	// 借贷指标
	lendingAPY  *prometheus.GaugeVec
	holdingDays *prometheus.GaugeVec

	// 运行指标
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	lastRunTime *prometheus.GaugeVec
	breaker     *prometheus.GaugeVec

	// 外部接口指标
	providerRequests *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "arm",
		Subsystem: "pricer",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		referencePrice: gauge("reference_price", "参考价格", "arm", "side"),
		targetPrice:    gauge("target_price", "目标报价", "arm", "side"),
		currentPrice:   gauge("current_price", "合约当前报价", "arm", "side"),
		priceDiffBps:   gauge("price_diff_bps", "目标价与当前价差（bp）", "arm", "side"),

		lendingAPY:  gauge("lending_apy", "借贷市场 APY", "arm"),
		holdingDays: gauge("holding_period_days", "预计持有天数", "arm"),

		runs:        counter("runs_total", "定价运行次数", "arm", "outcome"),
		failures:    counter("failures_total", "定价失败次数", "arm", "kind"),
		lastRunTime: gauge("last_run_timestamp_seconds", "最近一次运行时间", "arm"),
		breaker:     gauge("breaker_state", "熔断状态：0 关闭 1 打开 2 半开", "arm"),

		providerRequests: counter("provider_requests_total", "外部接口请求总数", "provider"),
		providerErrors:   counter("provider_errors_total", "外部接口错误总数", "provider"),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "外部接口延迟（秒）",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),
	}
}

func (m *Monitor) SetReference(arm string, mid, buy, sell float64) {
	m.referencePrice.WithLabelValues(arm, "mid").Set(mid)
	m.referencePrice.WithLabelValues(arm, "buy").Set(buy)
	m.referencePrice.WithLabelValues(arm, "sell").Set(sell)
}

func (m *Monitor) SetTargets(arm string, buy, sell float64) {
	m.targetPrice.WithLabelValues(arm, "buy").Set(buy)
	m.targetPrice.WithLabelValues(arm, "sell").Set(sell)
}

func (m *Monitor) SetCurrent(arm string, buy, sell float64) {
	m.currentPrice.WithLabelValues(arm, "buy").Set(buy)
	m.currentPrice.WithLabelValues(arm, "sell").Set(sell)
}

func (m *Monitor) SetDiffs(arm string, buyBps, sellBps float64) {
	m.priceDiffBps.WithLabelValues(arm, "buy").Set(buyBps)
	m.priceDiffBps.WithLabelValues(arm, "sell").Set(sellBps)
}

func (m *Monitor) SetLending(arm string, apy, holdingDays float64) {
	m.lendingAPY.WithLabelValues(arm).Set(apy)
	m.holdingDays.WithLabelValues(arm).Set(holdingDays)
}

// RecordRun 记录一次运行结果，outcome 取 Outcome* 常量。
func (m *Monitor) RecordRun(arm, outcome string) {
	m.runs.WithLabelValues(arm, outcome).Inc()
	m.lastRunTime.WithLabelValues(arm).Set(float64(time.Now().Unix()))
}

func (m *Monitor) RecordFailure(arm, kind string) {
	m.failures.WithLabelValues(arm, kind).Inc()
}

func (m *Monitor) SetBreakerState(arm string, state int) {
	m.breaker.WithLabelValues(arm).Set(float64(state))
}

// ObserveProvider 签名与 gateway.RequestObserver 一致。
func (m *Monitor) ObserveProvider(provider string, elapsed time.Duration, err error) {
	m.providerRequests.WithLabelValues(provider).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		m.providerErrors.WithLabelValues(provider).Inc()
	}
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
