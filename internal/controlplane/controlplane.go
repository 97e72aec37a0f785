package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade-governor-go/infrastructure/alert"
	"trade-governor-go/internal/exec"
	"trade-governor-go/internal/governance"
	"trade-governor-go/internal/healing"
	"trade-governor-go/internal/telemetry"
	"trade-governor-go/internal/truth"
	"trade-governor-go/metrics"
	"trade-governor-go/monitor"
)

// Config 控制面配置。
type Config struct {
	CycleInterval time.Duration `yaml:"cycleInterval"` // 评估周期，默认 1s
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{CycleInterval: time.Second}
}

// CycleResult 单个评估周期的产物。
type CycleResult struct {
	Verdict       truth.Verdict               `json:"verdict"`
	Transition    governance.TransitionResult `json:"transition"`
	EffectiveMode truth.Mode                  `json:"effective_mode"`
}

// ControlPlane 把真相层、治理状态机、执行守卫与自愈协调器
// 串成一条固定的评估管线：采集 → 裁决 → 转换 → 下发模式。
// 模式只能经此管线改变，任何组件都不得绕过。
type ControlPlane struct {
	cfg         Config
	evaluator   *truth.Evaluator
	fsm         *governance.FSM
	guard       *exec.Guard
	collector   *telemetry.Collector
	coordinator *healing.Coordinator
	sink        monitor.Sink
	logger      *zap.Logger

	mu        sync.Mutex
	requested truth.Mode
	alerts    *alert.Manager

	stopChan chan struct{}
	doneChan chan struct{}
	startOne sync.Once
	stopOne  sync.Once
}

// New 创建控制面。初始请求模式 OFF。
func New(cfg Config, evaluator *truth.Evaluator, fsm *governance.FSM, guard *exec.Guard,
	collector *telemetry.Collector, coordinator *healing.Coordinator,
	sink monitor.Sink, logger *zap.Logger) *ControlPlane {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultConfig().CycleInterval
	}
	if sink == nil {
		sink = monitor.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlPlane{
		cfg:         cfg,
		evaluator:   evaluator,
		fsm:         fsm,
		guard:       guard,
		collector:   collector,
		coordinator: coordinator,
		sink:        sink,
		logger:      logger,
		requested:   truth.ModeOff,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// SetAlerts 注入告警管理器。停机时发送 CRITICAL 告警。
func (cp *ControlPlane) SetAlerts(m *alert.Manager) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.alerts = m
}

// Evaluate 执行一个完整评估周期。
func (cp *ControlPlane) Evaluate(ctx context.Context) (CycleResult, error) {
	cp.mu.Lock()
	requested := cp.requested
	evaluator := cp.evaluator
	alerts := cp.alerts
	cp.mu.Unlock()

	state, err := cp.collector.Collect(ctx, requested)
	if err != nil {
		return CycleResult{}, fmt.Errorf("collect system state: %w", err)
	}

	verdict := evaluator.Evaluate(state)
	metrics.RecordVerdict(string(verdict.Decision), verdict.Confidence)
	cp.sink.Emit(monitor.CategorySys, "verdict", map[string]interface{}{
		"decision":   string(verdict.Decision),
		"mode":       string(verdict.Mode),
		"reasons":    verdict.ReasonCodes,
		"confidence": verdict.Confidence,
	})

	res := cp.fsm.Transition(requested, verdict)

	if verdict.Halted() {
		metrics.RecordHalt(res.Reason)
		cp.sink.Emit(monitor.CategorySys, "halt", map[string]interface{}{
			"reason": res.Reason,
			"from":   string(res.From),
		})
		cp.logger.Error("governance halt",
			zap.String("reason", res.Reason),
			zap.String("from", string(res.From)))
		if alerts != nil {
			_ = alerts.SendCritical("governance", "halt forced", map[string]interface{}{
				"reason": res.Reason,
				"from":   string(res.From),
			})
		}
		// 停机后不再替操作员保留旧的模式请求。
		cp.mu.Lock()
		cp.requested = truth.ModeOff
		cp.mu.Unlock()
	}

	if res.Success && res.From != res.To {
		metrics.RecordModeTransition(string(res.From), string(res.To))
		cp.sink.Emit(monitor.CategorySys, "mode_transition", map[string]interface{}{
			"from":    string(res.From),
			"to":      string(res.To),
			"success": true,
			"forced":  res.Forced,
		})
		cp.logger.Info("mode transition",
			zap.String("from", string(res.From)),
			zap.String("to", string(res.To)),
			zap.Bool("forced", res.Forced))
	}

	effective := cp.fsm.Mode()
	if err := cp.guard.SetMode(ctx, effective); err != nil {
		return CycleResult{}, fmt.Errorf("push mode to execution guard: %w", err)
	}

	return CycleResult{Verdict: verdict, Transition: res, EffectiveMode: effective}, nil
}

// RequestMode 登记目标模式并立即执行一个评估周期。
// 转换是否发生由裁决与转换表决定，调用方必须检查返回的 Transition。
func (cp *ControlPlane) RequestMode(ctx context.Context, mode truth.Mode) (CycleResult, error) {
	cp.mu.Lock()
	cp.requested = mode
	cp.mu.Unlock()
	return cp.Evaluate(ctx)
}

// ActivateKillSwitch 闭锁人工总闸并立即评估，强制 OFF。
func (cp *ControlPlane) ActivateKillSwitch(ctx context.Context, reason string) (CycleResult, error) {
	cp.collector.ActivateKillSwitch(reason)
	cp.logger.Error("kill switch activated", zap.String("reason", reason))
	return cp.Evaluate(ctx)
}

// RequestManualReset 人工复位：解除总闸并向状态机登记复位请求。
// 复位在下一次非 HALT 裁决的周期生效；若停机根因仍在（比如急停
// 仍闭锁），下一周期会立刻再次停机。
func (cp *ControlPlane) RequestManualReset(requestedBy string) {
	cp.collector.ResetKillSwitch()
	cp.fsm.RequestManualReset()
	cp.sink.Emit(monitor.CategorySys, "manual_reset", map[string]interface{}{
		"requested_by": requestedBy,
	})
	cp.logger.Warn("manual reset requested", zap.String("requested_by", requestedBy))
}

// ApplyThresholds 热更新求值阈值。从下一个评估周期开始生效，
// 时钟沿用现有求值器的。
func (cp *ControlPlane) ApplyThresholds(t truth.Thresholds) error {
	cp.mu.Lock()
	cp.evaluator = cp.evaluator.WithLimits(t)
	cp.mu.Unlock()
	cp.logger.Info("evaluator thresholds updated")
	return nil
}

// Mode 返回当前生效模式。
func (cp *ControlPlane) Mode() truth.Mode { return cp.fsm.Mode() }

// HaltActive 返回是否处于停机元状态。
func (cp *ControlPlane) HaltActive() bool { return cp.fsm.HaltActive() }

// HaltReason 返回停机原因。
func (cp *ControlPlane) HaltReason() string { return cp.fsm.HaltReason() }

// History 返回模式转换历史。
func (cp *ControlPlane) History() []governance.TransitionResult { return cp.fsm.History() }

// Health 聚合自愈层健康报告。
func (cp *ControlPlane) Health() healing.HealthReport {
	return cp.coordinator.RunHealthChecks()
}

// Start 启动周期评估循环。
func (cp *ControlPlane) Start(ctx context.Context) error {
	cp.startOne.Do(func() {
		go cp.run(ctx)
	})
	return nil
}

// Stop 停止循环并等待退出。
func (cp *ControlPlane) Stop() error {
	cp.stopOne.Do(func() { close(cp.stopChan) })
	select {
	case <-cp.doneChan:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for control plane to stop")
	}
}

func (cp *ControlPlane) run(ctx context.Context) {
	defer close(cp.doneChan)
	ticker := time.NewTicker(cp.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-cp.stopChan:
			return
		case <-ticker.C:
			if _, err := cp.Evaluate(ctx); err != nil {
				cp.logger.Error("evaluation cycle failed", zap.Error(err))
			}
		}
	}
}
