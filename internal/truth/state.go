package truth

// Mode 运行模式。HALT 不是模式，由治理层作为元状态管理。
type Mode string

const (
	ModeOff        Mode = "OFF"
	ModePaper      Mode = "PAPER"
	ModeLiveSmall  Mode = "LIVE_SMALL"
	ModeLive       Mode = "LIVE"
	ModeDiagnostic Mode = "DIAGNOSTIC"
)

// Valid 判断是否为已知模式。
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModePaper, ModeLiveSmall, ModeLive, ModeDiagnostic:
		return true
	}
	return false
}

// Live 判断是否为实盘模式（需要确认与审计）。
func (m Mode) Live() bool {
	return m == ModeLive || m == ModeLiveSmall
}

// SystemState 每个周期由遥测聚合层重建的快照，用后即弃。
// 可选信号用指针表示：nil 表示信号缺失，与数值 0 严格区分。
// 缺失的信号按"安全"处理，绝不因缺失触发 HALT。
type SystemState struct {
	KillSwitch    bool `json:"kill_switch"`
	EmergencyStop bool `json:"emergency_stop"`

	RealityGap   *float64 `json:"reality_gap,omitempty"`   // [0,1]
	LastDataTs   int64    `json:"last_data_timestamp"`     // 毫秒，0 表示尚无数据源
	DrawdownPct  *float64 `json:"current_drawdown_pct,omitempty"`
	DailyLossUSD *float64 `json:"daily_loss_usd,omitempty"` // 有符号，负数为亏损

	PerfP99Ms        *float64 `json:"perf_p99_ms,omitempty"`
	RejectionRate    *float64 `json:"rejection_rate,omitempty"` // [0,1]
	AvgSlippageBps   *float64 `json:"avg_slippage_bps,omitempty"`
	SystemConfidence *float64 `json:"system_confidence,omitempty"` // [0,1]

	RequestedMode Mode `json:"requested_mode,omitempty"`
}

// Float 构造可选信号，便于调用方填充快照。
func Float(v float64) *float64 { return &v }
