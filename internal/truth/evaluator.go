package truth

// Evaluator 真相层求值器：SystemState → Verdict 的纯函数（时间戳除外）。
// 内部是固定顺序的 HALT 级联，首个命中即短路；之后是非互斥的降级检查。
type Evaluator struct {
	limits Thresholds
	clock  Clock
}

// NewEvaluator 创建求值器。
func NewEvaluator(limits Thresholds) *Evaluator {
	return &Evaluator{limits: limits, clock: NowUTC}
}

// NewEvaluatorWithClock 注入时钟，用于数据时效的确定性测试。
func NewEvaluatorWithClock(limits Thresholds, clock Clock) *Evaluator {
	return &Evaluator{limits: limits, clock: clock}
}

// WithLimits 返回替换阈值后的新求值器，时钟沿用原实例。
func (e *Evaluator) WithLimits(limits Thresholds) *Evaluator {
	return &Evaluator{limits: limits, clock: e.clock}
}

// Limits 返回当前阈值（拷贝）。
func (e *Evaluator) Limits() Thresholds { return e.limits }

// Evaluate 对快照求值。相同输入（时间戳字段除外）必得相同输出。
func (e *Evaluator) Evaluate(s SystemState) Verdict {
	// HALT 级联，顺序固定，首个命中即返回。
	if s.KillSwitch {
		return e.halt(ReasonHaltKillSwitch)
	}
	if s.EmergencyStop {
		return e.halt(ReasonHaltEmergencyStop)
	}
	if s.RealityGap != nil && *s.RealityGap > e.limits.RealityGapHalt {
		return e.halt(ReasonHaltRealityGap)
	}
	// LastDataTs==0 表示尚无数据源接入，信号缺失不触发 HALT。
	if s.LastDataTs > 0 && e.limits.StalenessMs > 0 {
		ageMs := e.clock.Now().UnixMilli() - s.LastDataTs
		if ageMs > e.limits.StalenessMs {
			return e.halt(ReasonHaltDataStale)
		}
	}
	if s.DrawdownPct != nil && *s.DrawdownPct > e.limits.MaxDrawdownHaltPct {
		return e.halt(ReasonHaltMaxDrawdown)
	}
	if s.DailyLossUSD != nil && abs(*s.DailyLossUSD) > e.limits.MaxDailyLossHaltUSD {
		return e.halt(ReasonHaltDailyLoss)
	}

	// 非互斥的降级检查：收集全部命中的原因码。
	var degraded []string
	if s.PerfP99Ms != nil && *s.PerfP99Ms > e.limits.LatencyDegradedMs {
		degraded = append(degraded, ReasonDegradedLatency)
	}
	if s.RejectionRate != nil && *s.RejectionRate > e.limits.RejectionRateDegraded {
		degraded = append(degraded, ReasonDegradedRejectionRate)
	}
	if s.AvgSlippageBps != nil && *s.AvgSlippageBps > e.limits.SlippageDegradedBps {
		degraded = append(degraded, ReasonDegradedSlippage)
	}
	if s.SystemConfidence != nil && *s.SystemConfidence < e.limits.ConfidenceFloor {
		degraded = append(degraded, ReasonDegradedLowConfidence)
	}

	requested := s.RequestedMode
	if !requested.Valid() {
		requested = ModePaper
	}

	if len(degraded) > 0 {
		return Verdict{
			Decision:    DecisionDegraded,
			Mode:        degradeMode(requested),
			ReasonCodes: degraded,
			Confidence:  e.confidence(s, len(degraded)),
			Actions: Actions{
				ReduceRiskPct: e.limits.ReduceRiskPct,
				CooldownS:     e.limits.CooldownS,
			},
			Limits:    e.limits,
			Timestamp: e.clock.Now(),
		}
	}

	return Verdict{
		Decision:    DecisionAllow,
		Mode:        requested,
		ReasonCodes: []string{ReasonAllowOK},
		Confidence:  e.confidence(s, 0),
		Limits:      e.limits,
		Timestamp:   e.clock.Now(),
	}
}

func (e *Evaluator) halt(reason string) Verdict {
	return Verdict{
		Decision:    DecisionHalt,
		Mode:        ModeOff,
		ReasonCodes: []string{reason},
		Confidence:  0,
		Actions:     Actions{KillSwitch: true},
		Limits:      e.limits,
		Timestamp:   e.clock.Now(),
	}
}

// confidence 单调扣减公式。系数来自原始实现，按兼容性原样保留，
// 由固定数值测试钉住，不做"修正"。
func (e *Evaluator) confidence(s SystemState, degradedCount int) float64 {
	c := 1.0
	c -= e.limits.ReasonPenalty * float64(degradedCount)
	if s.RealityGap != nil {
		c -= *s.RealityGap * e.limits.RealityGapWeight
	}
	if s.RejectionRate != nil {
		c -= *s.RejectionRate * e.limits.RejectionWeight
	}
	if s.SystemConfidence != nil && c > *s.SystemConfidence {
		c = *s.SystemConfidence
	}
	return clamp01(c)
}

// degradeMode 降级策略：请求 LIVE 降至 LIVE_SMALL，其余一律降至 PAPER。
func degradeMode(requested Mode) Mode {
	if requested == ModeLive {
		return ModeLiveSmall
	}
	return ModePaper
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
