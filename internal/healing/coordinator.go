package healing

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade-governor-go/metrics"
	"trade-governor-go/monitor"
)

// Adapter 自愈层观察/修复执行适配器所需的最小接口。
// 自愈只恢复低层运行健康；治理层的停机只能走人工复位，这里永远碰不到。
type Adapter interface {
	// Health 适配器可达性探测。
	Health() error
	// EmergencyStopped 返回急停标志与原因。
	EmergencyStopped() (bool, string)
	// Repair 清除急停与适配器本地计数，不触碰仓位。
	Repair()
}

// HealthCheck 单项健康检查结果。
type HealthCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport 聚合健康报告：全部健康才算健康。
type HealthReport struct {
	Healthy   bool          `json:"healthy"`
	Checks    []HealthCheck `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
}

// RepairReport 一次自动修复的结果。
type RepairReport struct {
	BreakersReset    []string `json:"breakers_reset"`
	EmergencyCleared bool     `json:"emergency_cleared"`
}

// Coordinator 自愈协调器：管理各操作的熔断器、重试与健康聚合。
type Coordinator struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	adapter Adapter
	retryer *Retryer
	sink    monitor.Sink
	logger  *zap.Logger
}

// NewCoordinator 创建协调器。
func NewCoordinator(adapter Adapter, retryCfg RetryConfig, sink monitor.Sink, logger *zap.Logger) *Coordinator {
	if sink == nil {
		sink = monitor.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		breakers: make(map[string]*CircuitBreaker),
		adapter:  adapter,
		retryer:  NewRetryer(retryCfg),
		sink:     sink,
		logger:   logger,
	}
}

// SetAdapter 注入执行适配器。适配器构造时依赖协调器的熔断器，
// 因此允许事后注入一次。
func (c *Coordinator) SetAdapter(adapter Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapter = adapter
}

// RegisterBreaker 按操作名注册熔断器。重复注册返回已有实例。
func (c *Coordinator) RegisterBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, cfg)
	cb.OnTransition = func(name string, from, to State) {
		metrics.SetBreakerState(name, float64(to))
		c.logger.Warn("circuit breaker transition",
			zap.String("operation", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		c.sink.Emit(monitor.CategorySys, "breaker_transition", map[string]interface{}{
			"operation": name,
			"from":      from.String(),
			"to":        to.String(),
		})
	}
	metrics.SetBreakerState(name, float64(StateClosed))
	c.breakers[name] = cb
	return cb
}

// Breaker 取指定操作的熔断器，未注册时按默认配置创建。
func (c *Coordinator) Breaker(name string) *CircuitBreaker {
	c.mu.Lock()
	cb, ok := c.breakers[name]
	c.mu.Unlock()
	if ok {
		return cb
	}
	return c.RegisterBreaker(name, DefaultBreakerConfig())
}

// ExecuteWithRetry 经熔断器 + 指数退避执行操作。
// 熔断打开时立即失败，不消耗重试额度。
func (c *Coordinator) ExecuteWithRetry(ctx context.Context, op string, fn func() error) error {
	cb := c.Breaker(op)
	return c.retryer.Do(ctx, op, func() error {
		return cb.Call(fn)
	})
}

// RunHealthChecks 聚合健康检查：适配器可达性、急停标志、全部熔断器状态。
func (c *Coordinator) RunHealthChecks() HealthReport {
	report := HealthReport{Healthy: true, Timestamp: time.Now().UTC()}

	if adapter := c.getAdapter(); adapter != nil {
		check := HealthCheck{Name: "adapter", Healthy: true}
		if err := adapter.Health(); err != nil {
			check.Healthy = false
			check.Detail = err.Error()
		}
		report.Checks = append(report.Checks, check)

		stopCheck := HealthCheck{Name: "emergency_stop", Healthy: true}
		if stopped, reason := adapter.EmergencyStopped(); stopped {
			stopCheck.Healthy = false
			stopCheck.Detail = reason
		}
		report.Checks = append(report.Checks, stopCheck)
	}

	for _, cb := range c.snapshotBreakers() {
		check := HealthCheck{Name: "breaker:" + cb.Name(), Healthy: cb.IsClosed()}
		if !check.Healthy {
			check.Detail = cb.GetState().String()
		}
		report.Checks = append(report.Checks, check)
	}

	for _, ch := range report.Checks {
		if !ch.Healthy {
			report.Healthy = false
			break
		}
	}
	return report
}

// AutoRepair 自动修复：重置打开的熔断器、清除适配器急停与本地计数。
// 绝不清除治理层的停机——停机只能由人工复位路径恢复。
func (c *Coordinator) AutoRepair() RepairReport {
	report := RepairReport{BreakersReset: []string{}}

	for _, cb := range c.snapshotBreakers() {
		if cb.IsOpen() {
			cb.Reset()
			report.BreakersReset = append(report.BreakersReset, cb.Name())
		}
	}
	sort.Strings(report.BreakersReset)

	if adapter := c.getAdapter(); adapter != nil {
		if stopped, reason := adapter.EmergencyStopped(); stopped {
			adapter.Repair()
			report.EmergencyCleared = true
			c.logger.Info("auto repair cleared emergency stop", zap.String("reason", reason))
		}
	}

	metrics.AutoRepairsTotal.Inc()
	c.sink.Emit(monitor.CategorySys, "auto_repair", map[string]interface{}{
		"breakers_reset":    report.BreakersReset,
		"emergency_cleared": report.EmergencyCleared,
	})
	return report
}

func (c *Coordinator) getAdapter() Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter
}

func (c *Coordinator) snapshotBreakers() []*CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.breakers))
	for name := range c.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*CircuitBreaker, 0, len(names))
	for _, name := range names {
		out = append(out, c.breakers[name])
	}
	return out
}
