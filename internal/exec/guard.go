package exec

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-governor-go/internal/healing"
	"trade-governor-go/internal/truth"
	"trade-governor-go/metrics"
	"trade-governor-go/monitor"
)

// GuardConfig 执行守卫配置。
type GuardConfig struct {
	Gates     GateConfig `yaml:"gates"`
	QueueSize int        `yaml:"queueSize"` // 任务队列容量，默认 64
}

// DefaultGuardConfig 返回默认配置。
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{Gates: DefaultGateConfig(), QueueSize: 64}
}

// adapterState 共享可变状态。只允许在守卫的单工作协程内被改写。
type adapterState struct {
	position        float64 // 有符号名义仓位
	dailyPnL        float64
	emergencyStop   bool
	emergencyReason string
	orderSeq        int64 // 单调递增
}

// AdapterSnapshot 适配器状态快照（只读拷贝）。
type AdapterSnapshot struct {
	Position        float64 `json:"position"`
	DailyPnL        float64 `json:"daily_pnl"`
	EmergencyStop   bool    `json:"emergency_stop"`
	EmergencyReason string  `json:"emergency_reason,omitempty"`
	OrderSeq        int64   `json:"order_seq"`
}

// Guard 执行守卫：把所有并发下单请求串行化到单一工作协程，
// 闸门检查与状态提交在同一临界区内完成，上限无法被竞态绕过。
// 排队严格 FIFO，不重排；锁跨越交易所往返持有。
type Guard struct {
	cfg      GuardConfig
	exchange Exchange
	breaker  *healing.CircuitBreaker
	sink     monitor.Sink
	logger   *zap.Logger

	mode truth.Mode
	st   adapterState

	tasks    chan func()
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewGuard 创建执行守卫。初始模式 OFF（安全默认，不接受下单）。
func NewGuard(cfg GuardConfig, exchange Exchange, breaker *healing.CircuitBreaker, sink monitor.Sink, logger *zap.Logger) *Guard {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultGuardConfig().QueueSize
	}
	if sink == nil {
		sink = monitor.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:      cfg,
		exchange: exchange,
		breaker:  breaker,
		sink:     sink,
		logger:   logger,
		mode:     truth.ModeOff,
		tasks:    make(chan func(), cfg.QueueSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start 启动工作协程。
func (g *Guard) Start(ctx context.Context) error {
	go g.run(ctx)
	return nil
}

// Stop 停止工作协程。
func (g *Guard) Stop() error {
	select {
	case <-g.stopChan:
		// 已关闭
	default:
		close(g.stopChan)
	}
	select {
	case <-g.doneChan:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for execution guard to stop")
	}
}

// run 单工作协程：队列中的任务按提交顺序逐个执行。
func (g *Guard) run(ctx context.Context) {
	defer close(g.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopChan:
			return
		case task := <-g.tasks:
			task()
		}
	}
}

// submit 入队并等待任务完成。队列顺序即执行顺序。
func (g *Guard) submit(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case g.tasks <- task:
	case <-g.stopChan:
		return reject("queue", RejectNotRunning, "execution guard stopped")
	case <-g.doneChan:
		return reject("queue", RejectNotRunning, "execution guard stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-g.doneChan:
		return reject("queue", RejectNotRunning, "execution guard stopped")
	}
}

// Place 提交一个下单意图。confirmed 为带外显式确认标志，绝不由意图推断。
// 返回已提交回执或类型化拒单。
func (g *Guard) Place(ctx context.Context, intent OrderIntent, ectx ExecutionContext, confirmed bool) (Receipt, error) {
	var (
		receipt Receipt
		err     error
	)
	if subErr := g.submit(ctx, func() {
		receipt, err = g.doPlace(ctx, intent, ectx, confirmed)
	}); subErr != nil {
		return Receipt{}, subErr
	}
	return receipt, err
}

// doPlace 在工作协程内执行：闸门链 → 熔断检查 → 交易所提交。
// 整个过程持有临界区，后一个请求在前一个完全结束前不会开始。
func (g *Guard) doPlace(ctx context.Context, intent OrderIntent, ectx ExecutionContext, confirmed bool) (Receipt, error) {
	// 订单序号对每次到达闸门的请求单调递增，重放时可复现。
	g.st.orderSeq++
	ectx.OrderSeq = g.st.orderSeq
	ectx.Mode = g.mode
	orderID := ectx.OrderID()

	gc := &gateContext{
		cfg:       g.cfg.Gates,
		st:        &g.st,
		intent:    intent,
		mode:      g.mode,
		confirmed: confirmed,
		orderID:   orderID,
		sink:      g.sink,
		logger:    g.logger,
	}

	if err := runGates(gc); err != nil {
		g.emitBlock(orderID, err)
		return Receipt{}, err
	}

	if g.breaker != nil && !g.breaker.AllowRequest() {
		rollbackReservation(gc)
		err := reject("orderPlacement", RejectCircuitOpen, "order placement circuit open")
		g.emitBlock(orderID, err)
		return Receipt{}, err
	}

	ack, err := g.exchange.Submit(ctx, Order{
		ID:    orderID,
		Side:  intent.Side,
		Size:  intent.Size,
		Price: intent.Price,
		Type:  intent.Type,
		Mode:  g.mode,
	})
	if err != nil {
		// 下游执行失败：回滚预占并闭锁急停。实盘提交中出错的适配器
		// 不可再被无监督地信任，也不自动重试可能已重复的实盘订单。
		if g.breaker != nil {
			g.breaker.RecordFailure()
		}
		rollbackReservation(gc)
		reason := Sanitize(err.Error())
		g.st.emergencyStop = true
		g.st.emergencyReason = reason
		metrics.EmergencyStopsTotal.Inc()
		g.logger.Error("execution failure, emergency stop latched",
			zap.String("order_id", orderID),
			zap.String("error", reason))
		g.sink.Emit(monitor.CategoryRisk, "emergency_stop", map[string]interface{}{
			"reason":   reason,
			"order_id": orderID,
		})
		return Receipt{}, reject("submit", RejectExecutionFailed, "exchange failure: %s", reason)
	}
	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}

	status := ack.Status
	if status == "" {
		status = "ACCEPTED"
	}
	metrics.OrdersPlacedTotal.Inc()
	g.sink.Emit(monitor.CategoryExec, "order_commit", map[string]interface{}{
		"order_id": orderID,
		"status":   status,
	})
	return Receipt{OrderID: orderID, Status: status, Timestamp: time.Now().UTC()}, nil
}

func (g *Guard) emitBlock(orderID string, err error) {
	rej, ok := AsRejection(err)
	if !ok {
		rej = &Rejection{Code: RejectInternal, Reason: Sanitize(err.Error())}
	}
	metrics.RecordGateRejection(rej.Code)
	g.logger.Warn("safety block",
		zap.String("order_id", orderID),
		zap.String("gate", rej.Gate),
		zap.String("code", rej.Code),
		zap.String("reason", Sanitize(rej.Reason)))
	g.sink.Emit(monitor.CategoryRisk, "safety_block", map[string]interface{}{
		"gate":     rej.Gate,
		"code":     rej.Code,
		"reason":   Sanitize(rej.Reason),
		"order_id": orderID,
	})
}

// SetMode 设置当前生效模式（由控制面在每次模式转换后调用）。
func (g *Guard) SetMode(ctx context.Context, mode truth.Mode) error {
	return g.submit(ctx, func() { g.mode = mode })
}

// ApplyPnL 记入当日盈亏增量（由成交回报/盯市层调用）。
func (g *Guard) ApplyPnL(ctx context.Context, delta float64) error {
	return g.submit(ctx, func() { g.st.dailyPnL += delta })
}

// ActivateEmergencyStop 特权急停。
func (g *Guard) ActivateEmergencyStop(ctx context.Context, reason string) error {
	return g.submit(ctx, func() {
		g.st.emergencyStop = true
		g.st.emergencyReason = Sanitize(reason)
		metrics.EmergencyStopsTotal.Inc()
		g.sink.Emit(monitor.CategoryRisk, "emergency_stop", map[string]interface{}{
			"reason": g.st.emergencyReason,
		})
	})
}

// Snapshot 返回适配器状态快照。
func (g *Guard) Snapshot(ctx context.Context) (AdapterSnapshot, error) {
	var snap AdapterSnapshot
	err := g.submit(ctx, func() {
		snap = AdapterSnapshot{
			Position:        g.st.position,
			DailyPnL:        g.st.dailyPnL,
			EmergencyStop:   g.st.emergencyStop,
			EmergencyReason: g.st.emergencyReason,
			OrderSeq:        g.st.orderSeq,
		}
	})
	return snap, err
}

// Health 适配器可达性探测：工作协程在限期内响应视为健康。
func (g *Guard) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.submit(ctx, func() {}); err != nil {
		return fmt.Errorf("execution guard unresponsive: %w", err)
	}
	return nil
}

// EmergencyStopped 返回急停标志与原因（自愈层观察用）。
func (g *Guard) EmergencyStopped() (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return false, ""
	}
	return snap.EmergencyStop, snap.EmergencyReason
}

// Repair 清除急停（自愈层特权调用）。仓位与序号不动，
// 治理层的停机不在此处，也绝不会被此处清除。
func (g *Guard) Repair() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.submit(ctx, func() {
		g.st.emergencyStop = false
		g.st.emergencyReason = ""
	})
}
