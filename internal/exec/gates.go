package exec

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trade-governor-go/internal/truth"
	"trade-governor-go/monitor"
)

// maxOrderMagnitude 单笔数量/价格的合理上限，超出视为畸形输入。
const maxOrderMagnitude = 1e12

// GateConfig 安全闸门配置。
type GateConfig struct {
	MaxPositionSizeUSD float64 `yaml:"maxPositionSizeUSD"`
	MaxDailyLossUSD    float64 `yaml:"maxDailyLossUSD"`
}

// DefaultGateConfig 返回默认闸门配置。
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxPositionSizeUSD: 10_000,
		MaxDailyLossUSD:    1_000,
	}
}

// gateContext 一次闸门链执行的上下文。链在执行守卫的临界区内运行，
// 仓位检查与预占发生在同一临界区，封死 check-then-act 竞态窗口。
type gateContext struct {
	cfg       GateConfig
	st        *adapterState
	intent    OrderIntent
	mode      truth.Mode
	confirmed bool
	orderID   string

	sink   monitor.Sink
	logger *zap.Logger

	// 仓位预占记录，供拒单/失败时回滚
	reserved     bool
	prevPosition float64
}

type gateFunc struct {
	name  string
	check func(*gateContext) error
}

// gateChain 按固定顺序执行的 fail-closed 闸门链，首个拒绝即停。
var gateChain = []gateFunc{
	{"validateIntent", validateIntent},
	{"checkEnvironment", checkEnvironment},
	{"checkEmergencyStop", checkEmergencyStop},
	{"checkPositionCap", checkPositionCap},
	{"checkDailyLossCap", checkDailyLossCap},
	{"requireConfirmation", requireConfirmation},
	{"auditLog", auditLog},
}

// runGates 执行闸门链。任何拒绝或 panic 都会回滚仓位预占后返回错误；
// panic 与显式拒绝同等对待（fail-closed）。
func runGates(gc *gateContext) error {
	for _, g := range gateChain {
		if err := runGate(g, gc); err != nil {
			rollbackReservation(gc)
			return err
		}
	}
	return nil
}

func runGate(g gateFunc, gc *gateContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = reject(g.name, RejectInternal, "gate panic: %s", Sanitize(fmt.Sprint(r)))
		}
	}()
	return g.check(gc)
}

func rollbackReservation(gc *gateContext) {
	if gc.reserved {
		gc.st.position = gc.prevPosition
		gc.reserved = false
	}
}

// validateIntent 意图形状校验：显式拒绝 NaN/Inf/非正数/超界。
func validateIntent(gc *gateContext) error {
	i := gc.intent
	if i.Side != SideBuy && i.Side != SideSell {
		return reject("validateIntent", RejectBadIntent, "invalid side %q", i.Side)
	}
	if i.Type != TypeMarket && i.Type != TypeLimit {
		return reject("validateIntent", RejectBadIntent, "invalid type %q", i.Type)
	}
	if math.IsNaN(i.Size) || math.IsInf(i.Size, 0) {
		return reject("validateIntent", RejectBadIntent, "size is not finite")
	}
	if i.Size <= 0 || i.Size > maxOrderMagnitude {
		return reject("validateIntent", RejectBadIntent, "size %v out of range (0, %g]", i.Size, float64(maxOrderMagnitude))
	}
	if math.IsNaN(i.Price) || math.IsInf(i.Price, 0) {
		return reject("validateIntent", RejectBadIntent, "price is not finite")
	}
	if i.Price <= 0 || i.Price > maxOrderMagnitude {
		return reject("validateIntent", RejectBadIntent, "price %v out of range (0, %g]", i.Price, float64(maxOrderMagnitude))
	}
	return nil
}

// checkEnvironment 非交易模式下不接受任何下单。
func checkEnvironment(gc *gateContext) error {
	switch gc.mode {
	case truth.ModePaper, truth.ModeLiveSmall, truth.ModeLive:
		return nil
	}
	return reject("checkEnvironment", RejectModeBlocked, "mode %s does not accept orders", gc.mode)
}

// checkEmergencyStop 急停期间拒绝一切，只有特权修复可以清除。
func checkEmergencyStop(gc *gateContext) error {
	if gc.st.emergencyStop {
		return reject("checkEmergencyStop", RejectEmergencyStop, "emergency stop active: %s", Sanitize(gc.st.emergencyReason))
	}
	return nil
}

// checkPositionCap 仓位上限检查与乐观预占在同一临界区内完成。
func checkPositionCap(gc *gateContext) error {
	next := gc.st.position + gc.intent.SignedSize()
	if math.Abs(next) > gc.cfg.MaxPositionSizeUSD {
		return reject("checkPositionCap", RejectPositionCap,
			"position %.2f would exceed cap %.2f", next, gc.cfg.MaxPositionSizeUSD)
	}
	gc.prevPosition = gc.st.position
	gc.st.position = next
	gc.reserved = true
	return nil
}

// checkDailyLossCap 当日亏损越限后拒绝继续开仓。
func checkDailyLossCap(gc *gateContext) error {
	if gc.st.dailyPnL < -gc.cfg.MaxDailyLossUSD {
		return reject("checkDailyLossCap", RejectDailyLossCap,
			"daily pnl %.2f below -%.2f", gc.st.dailyPnL, gc.cfg.MaxDailyLossUSD)
	}
	return nil
}

// requireConfirmation 实盘模式必须带外显式确认，绝不推断。
func requireConfirmation(gc *gateContext) error {
	if gc.mode.Live() && !gc.confirmed {
		return reject("requireConfirmation", RejectConfirmationRequired,
			"live order requires explicit confirmation")
	}
	return nil
}

// auditLog 实盘订单放行前落审计记录。落地失败不拦单
// （可观测性不能成为安全隐患），但失败本身要留痕。
func auditLog(gc *gateContext) error {
	if !gc.mode.Live() {
		return nil
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				gc.logger.Warn("audit sink failure",
					zap.String("order_id", gc.orderID),
					zap.String("error", Sanitize(fmt.Sprint(r))))
			}
		}()
		gc.sink.Emit(monitor.CategoryExec, "audit_order", map[string]interface{}{
			"order_id": gc.orderID,
			"side":     string(gc.intent.Side),
			"size":     gc.intent.Size,
			"price":    gc.intent.Price,
			"mode":     string(gc.mode),
		})
	}()
	return nil
}
