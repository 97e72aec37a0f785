package truth

import "time"

// Decision 裁决结果。
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionDegraded Decision = "DEGRADED"
	DecisionHalt     Decision = "HALT"
)

// 稳定的原因码，供审计与下游判定使用。
const (
	ReasonHaltKillSwitch    = "HALT_KILL_SWITCH_ACTIVE"
	ReasonHaltEmergencyStop = "HALT_EMERGENCY_STOP"
	ReasonHaltRealityGap    = "HALT_REALITY_GAP"
	ReasonHaltDataStale     = "HALT_DATA_STALE"
	ReasonHaltMaxDrawdown   = "HALT_MAX_DRAWDOWN"
	ReasonHaltDailyLoss     = "HALT_DAILY_LOSS"

	ReasonDegradedLatency       = "DEGRADED_LATENCY"
	ReasonDegradedRejectionRate = "DEGRADED_REJECTION_RATE"
	ReasonDegradedSlippage      = "DEGRADED_SLIPPAGE"
	ReasonDegradedLowConfidence = "DEGRADED_LOW_CONFIDENCE"

	ReasonAllowOK = "ALLOW_OK"
)

// Actions 裁决附带的强制动作，DEGRADED 时调用方必须执行降风险。
type Actions struct {
	KillSwitch    bool    `json:"kill_switch"`
	ReduceRiskPct float64 `json:"reduce_risk_pct"`
	CooldownS     float64 `json:"cooldown_s"`
}

// Thresholds 求值阈值配置。裁决会携带一份拷贝作为审计快照。
type Thresholds struct {
	RealityGapHalt      float64 `yaml:"realityGapHalt" json:"reality_gap_halt"`
	StalenessMs         int64   `yaml:"stalenessMs" json:"staleness_ms"`
	MaxDrawdownHaltPct  float64 `yaml:"maxDrawdownHaltPct" json:"max_drawdown_halt_pct"`
	MaxDailyLossHaltUSD float64 `yaml:"maxDailyLossHaltUSD" json:"max_daily_loss_halt_usd"`

	LatencyDegradedMs     float64 `yaml:"latencyDegradedMs" json:"latency_degraded_ms"`
	RejectionRateDegraded float64 `yaml:"rejectionRateDegraded" json:"rejection_rate_degraded"`
	SlippageDegradedBps   float64 `yaml:"slippageDegradedBps" json:"slippage_degraded_bps"`
	ConfidenceFloor       float64 `yaml:"confidenceFloor" json:"confidence_floor"`

	ReduceRiskPct float64 `yaml:"reduceRiskPct" json:"reduce_risk_pct"`
	CooldownS     float64 `yaml:"cooldownS" json:"cooldown_s"`

	// 置信度扣减公式的系数。来自原始实现的经验值，按兼容性原样保留。
	ReasonPenalty    float64 `yaml:"reasonPenalty" json:"reason_penalty"`
	RealityGapWeight float64 `yaml:"realityGapWeight" json:"reality_gap_weight"`
	RejectionWeight  float64 `yaml:"rejectionWeight" json:"rejection_weight"`
}

// DefaultThresholds 返回默认阈值。
func DefaultThresholds() Thresholds {
	return Thresholds{
		RealityGapHalt:      0.85,
		StalenessMs:         30_000,
		MaxDrawdownHaltPct:  20,
		MaxDailyLossHaltUSD: 5_000,

		LatencyDegradedMs:     750,
		RejectionRateDegraded: 0.20,
		SlippageDegradedBps:   25,
		ConfidenceFloor:       0.30,

		ReduceRiskPct: 50,
		CooldownS:     300,

		ReasonPenalty:    0.15,
		RealityGapWeight: 0.25,
		RejectionWeight:  0.25,
	}
}

// Verdict 单次求值的不可变结果。
// 不变量：Decision==HALT ⇒ Confidence==0 ∧ Mode==OFF ∧ Actions.KillSwitch==true。
type Verdict struct {
	Decision    Decision   `json:"verdict"`
	Mode        Mode       `json:"mode"`
	ReasonCodes []string   `json:"reason_codes"`
	Confidence  float64    `json:"confidence"`
	Actions     Actions    `json:"actions"`
	Limits      Thresholds `json:"limits_snapshot"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Halted 判断是否为 HALT 裁决。
func (v Verdict) Halted() bool { return v.Decision == DecisionHalt }
