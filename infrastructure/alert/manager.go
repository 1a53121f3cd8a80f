package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// 告警级别
const (
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// 定价告警事件
const (
	EventSubmitted     = "prices_submitted"
	EventRunFailed     = "run_failed"
	EventContradiction = "bound_contradiction"
	EventSuspended     = "runs_suspended"
	EventResumed       = "runs_resumed"
)

// Alert 告警信息
type Alert struct {
	Level     string // Level* 常量
	Event     string // Event* 常量
	ARM       string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// key 限流分组：同一 ARM 同一事件同一消息。
func (a Alert) key() string {
	return strings.Join([]string{a.Level, a.ARM, a.Event, a.Message}, "|")
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 按 key 限流，interval 内只放行第一条。
type Throttler struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		interval: interval,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 把定价事件分发到所有通道。
// 提交事件不限流，每笔交易都要可见；其余事件按 ARM+事件 限流，避免循环模式下刷屏。
type Manager struct {
	channels []Channel
	throttle *Throttler
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send 限流后发送到所有通道；只有全部通道失败才返回错误。
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = m.throttle.now()
	}
	if a.ARM != "" {
		fields := make(map[string]interface{}, len(a.Fields)+1)
		for k, v := range a.Fields {
			fields[k] = v
		}
		fields["arm"] = a.ARM
		a.Fields = fields
	}
	if a.Event != EventSubmitted && !m.throttle.Allow(a.key()) {
		return nil
	}

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}
	if len(errs) > 0 && len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// Channels 通道名称
func (m *Manager) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 配置热更新后清空限流，新配置下的首个失败立即告警。
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}

// PricesSubmitted 报价已提交。
func (m *Manager) PricesSubmitted(arm, buy, sell, tx string) error {
	return m.Send(Alert{
		Level: LevelInfo, Event: EventSubmitted, ARM: arm,
		Message: "prices submitted",
		Fields:  map[string]interface{}{"buy": buy, "sell": sell, "tx": tx},
	})
}

// RunFailed 定价运行失败，本次没有提交。kind 参与限流分组。
func (m *Manager) RunFailed(arm, kind string, err error) error {
	return m.Send(Alert{
		Level: LevelError, Event: EventRunFailed, ARM: arm,
		Message: "pricing run failed: " + kind,
		Fields:  map[string]interface{}{"kind": kind, "error": err.Error()},
	})
}

// BoundContradiction 借贷推导的最高买价不低于最低买价，已改用最低买价。
func (m *Manager) BoundContradiction(arm, minBuy, mid string) error {
	return m.Send(Alert{
		Level: LevelWarning, Event: EventContradiction, ARM: arm,
		Message: "max buy price not below min buy price",
		Fields:  map[string]interface{}{"minBuy": minBuy, "mid": mid},
	})
}

// RunsSuspended 连续失败触发熔断，冷却期内不再运行。
func (m *Manager) RunsSuspended(arm string, failures int, cooldown time.Duration) error {
	return m.Send(Alert{
		Level: LevelCritical, Event: EventSuspended, ARM: arm,
		Message: "pricing runs suspended",
		Fields:  map[string]interface{}{"consecutiveFailures": failures, "cooldown": cooldown.String()},
	})
}

// RunsResumed 熔断恢复。
func (m *Manager) RunsResumed(arm string) error {
	return m.Send(Alert{
		Level: LevelInfo, Event: EventResumed, ARM: arm,
		Message: "pricing runs resumed",
	})
}
