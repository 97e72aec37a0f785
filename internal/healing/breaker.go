package healing

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen 熔断期间拒绝请求。
var ErrBreakerOpen = errors.New("circuit breaker open")

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态 - 正常放行
	StateClosed State = iota
	// StateOpen 打开状态 - 熔断，拒绝所有请求
	StateOpen
	// StateHalfOpen 半开状态 - 尝试恢复
	StateHalfOpen
)

// String 返回状态名称
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

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold int `yaml:"failureThreshold"`
	// SuccessThreshold 半开状态下连续成功多少次后恢复
	SuccessThreshold int `yaml:"successThreshold"`
	// Timeout 熔断后的等待时间，到期后下一次调用转入半开
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultBreakerConfig 返回默认配置。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// CircuitBreaker 按操作名隔离失败的熔断器。启动时创建，进程内常驻，
// 只转换状态从不替换实例。超时在下一次调用时惰性判定。
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	state           State
	failureCount    int64
	successCount    int64
	consecutiveFail int64
	halfOpenSuccess int64
	lastFailTime    time.Time
	openTime        time.Time

	clock Clock

	// OnTransition 状态变化回调（可选）。回调内不得再调用本熔断器。
	OnTransition func(name string, from, to State)

	mu sync.Mutex
}

// NewCircuitBreaker 创建熔断器。
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		clock: systemClock,
	}
}

// NewCircuitBreakerWithClock 注入时钟，便于超时测试。
func NewCircuitBreakerWithClock(name string, cfg BreakerConfig, clock Clock) *CircuitBreaker {
	cb := NewCircuitBreaker(name, cfg)
	cb.clock = clock
	return cb
}

// Name 返回操作名。
func (cb *CircuitBreaker) Name() string { return cb.name }

// Call 通过熔断器执行操作。
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// AllowRequest 判断当前是否放行（不改变计数，但可能触发惰性半开转换）。
func (cb *CircuitBreaker) AllowRequest() bool {
	return cb.beforeCall() == nil
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case StateClosed, StateHalfOpen:
		cb.mu.Unlock()
		return nil

	case StateOpen:
		// 超时惰性判定：到期则转入半开
		elapsed := cb.clock.Now().Sub(cb.openTime)
		if elapsed >= cb.cfg.Timeout {
			cb.state = StateHalfOpen
			cb.halfOpenSuccess = 0
			to := cb.state
			cb.mu.Unlock()
			cb.notify(from, to)
			return nil
		}
		remaining := cb.cfg.Timeout - elapsed
		cb.mu.Unlock()
		return fmt.Errorf("%w: %s, retry in %v", ErrBreakerOpen, cb.name, remaining)

	default:
		cb.mu.Unlock()
		return fmt.Errorf("unknown circuit breaker state: %d", from)
	}
}

// RecordSuccess 记录一次成功。
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state

	cb.successCount++
	cb.consecutiveFail = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= int64(cb.cfg.SuccessThreshold) {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.halfOpenSuccess = 0
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// RecordFailure 记录一次失败。
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state

	cb.failureCount++
	cb.consecutiveFail++
	cb.lastFailTime = cb.clock.Now()

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFail >= int64(cb.cfg.FailureThreshold) {
			cb.state = StateOpen
			cb.openTime = cb.clock.Now()
		}
	case StateHalfOpen:
		// 半开状态下任何失败立即重新熔断
		cb.state = StateOpen
		cb.openTime = cb.clock.Now()
		cb.halfOpenSuccess = 0
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// GetState 获取当前状态。
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen 判断是否处于打开状态。
func (cb *CircuitBreaker) IsOpen() bool { return cb.GetState() == StateOpen }

// IsClosed 判断是否处于关闭状态。
func (cb *CircuitBreaker) IsClosed() bool { return cb.GetState() == StateClosed }

// IsHalfOpen 判断是否处于半开状态。
func (cb *CircuitBreaker) IsHalfOpen() bool { return cb.GetState() == StateHalfOpen }

// BreakerMetrics 熔断器指标快照。
type BreakerMetrics struct {
	Name             string
	State            State
	FailureCount     int64
	SuccessCount     int64
	ConsecutiveFails int64
	LastFailTime     time.Time
	OpenTime         time.Time
}

// Metrics 获取指标快照。
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerMetrics{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		ConsecutiveFails: cb.consecutiveFail,
		LastFailTime:     cb.lastFailTime,
		OpenTime:         cb.openTime,
	}
}

// Reset 重置到关闭状态（自愈/人工修复使用）。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.consecutiveFail = 0
	cb.halfOpenSuccess = 0
	cb.lastFailTime = time.Time{}
	cb.openTime = time.Time{}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// ForceOpen 强制熔断。
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateOpen
	cb.openTime = cb.clock.Now()
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.OnTransition != nil {
		cb.OnTransition(cb.name, from, to)
	}
}
