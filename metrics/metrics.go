package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 裁决与治理指标
var (
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_verdicts_total",
		Help: "Truth evaluator verdicts by decision",
	}, []string{"decision"})

	HaltsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_halts_total",
		Help: "HALT verdicts by first reason code",
	}, []string{"reason"})

	SystemConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "governor_system_confidence",
		Help: "Confidence score of the latest verdict (0..1)",
	})

	CurrentMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "governor_mode",
		Help: "Effective trading mode (1 for the active mode, 0 otherwise)",
	}, []string{"mode"})

	ModeTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_mode_transitions_total",
		Help: "Committed mode transitions",
	}, []string{"from", "to"})
)

// 执行与安全闸门指标
var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governor_orders_placed_total",
		Help: "Orders that cleared the gate chain and were committed",
	})

	GateRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governor_gate_rejections_total",
		Help: "Gate chain rejections by code",
	}, []string{"code"})

	EmergencyStopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governor_emergency_stops_total",
		Help: "Emergency stop activations",
	})
)

// 自愈指标
var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "governor_breaker_state",
		Help: "Circuit breaker state (0=CLOSED 1=OPEN 2=HALF_OPEN)",
	}, []string{"operation"})

	AutoRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governor_auto_repairs_total",
		Help: "Auto repair passes executed",
	})
)

var knownModes = []string{"OFF", "PAPER", "LIVE_SMALL", "LIVE", "DIAGNOSTIC"}

// RecordVerdict 记录一次裁决。
func RecordVerdict(decision string, confidence float64) {
	VerdictsTotal.WithLabelValues(decision).Inc()
	SystemConfidence.Set(confidence)
}

// RecordHalt 记录一次熔断裁决。
func RecordHalt(reason string) {
	HaltsTotal.WithLabelValues(reason).Inc()
}

// SetMode 设置当前生效模式，未命中的模式清零。
func SetMode(mode string) {
	for _, m := range knownModes {
		v := 0.0
		if m == mode {
			v = 1.0
		}
		CurrentMode.WithLabelValues(m).Set(v)
	}
}

// RecordModeTransition 记录一次已提交的模式转换。
func RecordModeTransition(from, to string) {
	ModeTransitionsTotal.WithLabelValues(from, to).Inc()
	SetMode(to)
}

// RecordGateRejection 记录一次闸门拒单。
func RecordGateRejection(code string) {
	GateRejectionsTotal.WithLabelValues(code).Inc()
}

// SetBreakerState 上报熔断器状态。
func SetBreakerState(operation string, state float64) {
	BreakerState.WithLabelValues(operation).Set(state)
}
