package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen 熔断期间拒绝执行。
var ErrOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	// StateClosed 正常运行
	StateClosed State = iota
	// StateOpen 熔断，跳过所有运行
	StateOpen
	// StateHalfOpen 冷却结束，试探恢复
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Threshold      int           // 连续失败多少次后熔断
	Cooldown       time.Duration // 熔断持续时间
	HalfOpenMaxTry int           // 半开状态需要连续成功的次数
	// OnStateChange 状态变化回调，在锁外调用
	OnStateChange func(from, to State, consecutiveFails int)
}

// CircuitBreaker 定价运行的连续失败熔断。
// 报价服务持续失败（RPC 宕机、聚合器限流）时暂停运行，避免每个触发都打满上游并刷屏告警。
type CircuitBreaker struct {
	threshold      int
	cooldown       time.Duration
	halfOpenMaxTry int
	onChange       func(from, to State, consecutiveFails int)

	// now 测试注入
	now func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	halfOpenSuccess int
	openedAt        time.Time
	lastErr         error
}

// NewCircuitBreaker 创建熔断器，零值配置使用默认值。
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	if config.HalfOpenMaxTry <= 0 {
		config.HalfOpenMaxTry = 1
	}
	return &CircuitBreaker{
		threshold:      config.Threshold,
		cooldown:       config.Cooldown,
		halfOpenMaxTry: config.HalfOpenMaxTry,
		onChange:       config.OnStateChange,
		now:            time.Now,
		state:          StateClosed,
	}
}

// Call 通过熔断器执行 fn；熔断期间返回包装了 ErrOpen 的错误且不调用 fn。
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	remaining := cb.cooldown - cb.now().Sub(cb.openedAt)
	if remaining > 0 {
		cb.mu.Unlock()
		return fmt.Errorf("%w, retry in %v", ErrOpen, remaining.Round(time.Second))
	}
	from, fails := cb.transition(StateHalfOpen)
	cb.mu.Unlock()
	cb.notify(from, StateHalfOpen, fails)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	to := from
	if err != nil {
		cb.consecutiveFail++
		cb.lastErr = err
		// 半开状态下失败立即重新熔断
		if from == StateHalfOpen || cb.consecutiveFail >= cb.threshold {
			to = StateOpen
		}
	} else {
		cb.consecutiveFail = 0
		if from == StateHalfOpen {
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.halfOpenMaxTry {
				to = StateClosed
			}
		}
	}
	fails := cb.consecutiveFail
	if to != from {
		cb.transition(to)
	}
	cb.mu.Unlock()
	if to != from {
		cb.notify(from, to, fails)
	}
}

// transition 需持有锁。
func (cb *CircuitBreaker) transition(to State) (State, int) {
	from := cb.state
	cb.state = to
	cb.halfOpenSuccess = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if to == StateClosed {
		cb.lastErr = nil
	}
	return from, cb.consecutiveFail
}

func (cb *CircuitBreaker) notify(from, to State, fails int) {
	if cb.onChange != nil {
		cb.onChange(from, to, fails)
	}
}

// State 返回当前状态；冷却已结束但还没有新的运行时仍报告 OPEN。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats 熔断器快照
type Stats struct {
	State            State
	ConsecutiveFails int
	OpenedAt         time.Time
	LastErr          error
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFail,
		OpenedAt:         cb.openedAt,
		LastErr:          cb.lastErr,
	}
}

// Reset 回到关闭状态，配置热更新后由调用方使用。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.consecutiveFail = 0
	cb.transition(StateClosed)
	cb.mu.Unlock()
	if from != StateClosed {
		cb.notify(from, StateClosed, 0)
	}
}
