package truth

import (
	"math"
	"reflect"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

func newTestEvaluator() (*Evaluator, fakeClock) {
	clock := fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	return NewEvaluatorWithClock(DefaultThresholds(), clock), clock
}

func TestEvaluate_RealityGapHalt(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{
		RealityGap: Float(0.9), // 阈值 0.85
	})

	if v.Decision != DecisionHalt {
		t.Fatalf("expected HALT, got %s", v.Decision)
	}
	if !reflect.DeepEqual(v.ReasonCodes, []string{ReasonHaltRealityGap}) {
		t.Errorf("unexpected reasons: %v", v.ReasonCodes)
	}
	if v.Mode != ModeOff {
		t.Errorf("expected mode OFF, got %s", v.Mode)
	}
	if v.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", v.Confidence)
	}
	if !v.Actions.KillSwitch {
		t.Error("expected kill switch action on HALT")
	}
}

func TestEvaluate_HaltCascadeOrder(t *testing.T) {
	ev, _ := newTestEvaluator()

	// 同时满足多个 HALT 条件时，级联顺序决定原因码，首个命中即短路。
	v := ev.Evaluate(SystemState{
		KillSwitch:    true,
		EmergencyStop: true,
		RealityGap:    Float(0.99),
	})
	if v.ReasonCodes[0] != ReasonHaltKillSwitch {
		t.Errorf("expected kill switch to win cascade, got %v", v.ReasonCodes)
	}

	v = ev.Evaluate(SystemState{
		EmergencyStop: true,
		RealityGap:    Float(0.99),
	})
	if v.ReasonCodes[0] != ReasonHaltEmergencyStop {
		t.Errorf("expected emergency stop before reality gap, got %v", v.ReasonCodes)
	}
}

func TestEvaluate_DataStale(t *testing.T) {
	ev, clock := newTestEvaluator()

	stale := clock.now.Add(-time.Minute).UnixMilli() // 超过 30s 阈值
	v := ev.Evaluate(SystemState{LastDataTs: stale})
	if v.Decision != DecisionHalt || v.ReasonCodes[0] != ReasonHaltDataStale {
		t.Fatalf("expected stale-data HALT, got %s %v", v.Decision, v.ReasonCodes)
	}

	fresh := clock.now.Add(-time.Second).UnixMilli()
	v = ev.Evaluate(SystemState{LastDataTs: fresh})
	if v.Decision != DecisionAllow {
		t.Fatalf("expected ALLOW for fresh data, got %s", v.Decision)
	}

	// LastDataTs==0 表示无数据源，信号缺失不得触发 HALT。
	v = ev.Evaluate(SystemState{})
	if v.Decision != DecisionAllow {
		t.Fatalf("expected ALLOW with no data feed, got %s %v", v.Decision, v.ReasonCodes)
	}
}

func TestEvaluate_DailyLossUsesAbsoluteValue(t *testing.T) {
	ev, _ := newTestEvaluator()

	v := ev.Evaluate(SystemState{DailyLossUSD: Float(-6000)}) // 阈值 5000
	if v.Decision != DecisionHalt || v.ReasonCodes[0] != ReasonHaltDailyLoss {
		t.Fatalf("expected daily-loss HALT, got %s %v", v.Decision, v.ReasonCodes)
	}

	v = ev.Evaluate(SystemState{DailyLossUSD: Float(-4000)})
	if v.Decision != DecisionAllow {
		t.Fatalf("expected ALLOW under loss cap, got %s", v.Decision)
	}
}

func TestEvaluate_MissingSignalIsNotZero(t *testing.T) {
	ev, _ := newTestEvaluator()

	// 缺失的回撤信号按安全处理；显式 0 同样安全但走的是数值路径。
	if v := ev.Evaluate(SystemState{}); v.Decision != DecisionAllow {
		t.Fatalf("missing signals must pass, got %s", v.Decision)
	}
	if v := ev.Evaluate(SystemState{DrawdownPct: Float(0)}); v.Decision != DecisionAllow {
		t.Fatalf("explicit zero must pass, got %s", v.Decision)
	}
	// 缺失的 system_confidence 不得触发低置信度降级。
	v := ev.Evaluate(SystemState{})
	for _, r := range v.ReasonCodes {
		if r == ReasonDegradedLowConfidence {
			t.Error("missing system_confidence must not degrade")
		}
	}
}

func TestEvaluate_DegradedCollectsAllReasons(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{
		PerfP99Ms:      Float(2000),
		RejectionRate:  Float(0.5),
		AvgSlippageBps: Float(80),
		RequestedMode:  ModeLive,
	})

	if v.Decision != DecisionDegraded {
		t.Fatalf("expected DEGRADED, got %s", v.Decision)
	}
	want := []string{ReasonDegradedLatency, ReasonDegradedRejectionRate, ReasonDegradedSlippage}
	if !reflect.DeepEqual(v.ReasonCodes, want) {
		t.Errorf("expected all matching reasons %v, got %v", want, v.ReasonCodes)
	}
	// LIVE 请求降级到 LIVE_SMALL。
	if v.Mode != ModeLiveSmall {
		t.Errorf("expected LIVE downgraded to LIVE_SMALL, got %s", v.Mode)
	}
	if v.Actions.ReduceRiskPct != DefaultThresholds().ReduceRiskPct {
		t.Errorf("expected reduce_risk_pct from config, got %f", v.Actions.ReduceRiskPct)
	}
	if v.Actions.CooldownS != DefaultThresholds().CooldownS {
		t.Errorf("expected cooldown_s from config, got %f", v.Actions.CooldownS)
	}
}

func TestEvaluate_DegradedDowngradesToPaper(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{
		PerfP99Ms:     Float(2000),
		RequestedMode: ModeLiveSmall,
	})
	if v.Mode != ModePaper {
		t.Errorf("expected LIVE_SMALL downgraded to PAPER, got %s", v.Mode)
	}
}

func TestEvaluate_AllowKeepsRequestedMode(t *testing.T) {
	ev, _ := newTestEvaluator()

	v := ev.Evaluate(SystemState{RequestedMode: ModeLive})
	if v.Decision != DecisionAllow || v.Mode != ModeLive {
		t.Fatalf("expected ALLOW LIVE, got %s %s", v.Decision, v.Mode)
	}
	if !reflect.DeepEqual(v.ReasonCodes, []string{ReasonAllowOK}) {
		t.Errorf("unexpected reasons: %v", v.ReasonCodes)
	}

	// 未指定模式默认 PAPER。
	v = ev.Evaluate(SystemState{})
	if v.Mode != ModePaper {
		t.Errorf("expected default PAPER, got %s", v.Mode)
	}
}

// TestEvaluate_ConfidencePinned 钉住置信度扣减公式的具体数值。
// 该公式是原始实现的经验算式，作为兼容行为保留，数值变动即视为回归。
func TestEvaluate_ConfidencePinned(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{
		RealityGap:    Float(0.4),
		RejectionRate: Float(0.5), // 同时触发降级
	})

	// 1.0 - 0.15*1 - 0.4*0.25 - 0.5*0.25 = 0.625
	if math.Abs(v.Confidence-0.625) > 1e-9 {
		t.Errorf("pinned confidence 0.625, got %f", v.Confidence)
	}
}

func TestEvaluate_ConfidenceClampedBySystemConfidence(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{SystemConfidence: Float(0.42)})
	if v.Confidence != 0.42 {
		t.Errorf("expected clamp to system_confidence 0.42, got %f", v.Confidence)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ev, _ := newTestEvaluator()
	state := SystemState{
		RealityGap:     Float(0.3),
		DrawdownPct:    Float(5),
		DailyLossUSD:   Float(-100),
		PerfP99Ms:      Float(900),
		RejectionRate:  Float(0.1),
		AvgSlippageBps: Float(10),
		RequestedMode:  ModeLive,
	}

	a := ev.Evaluate(state)
	b := ev.Evaluate(state)

	if a.Decision != b.Decision || a.Mode != b.Mode || a.Confidence != b.Confidence {
		t.Fatalf("evaluation not deterministic: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(a.ReasonCodes, b.ReasonCodes) || a.Actions != b.Actions {
		t.Fatalf("evaluation not deterministic: %+v vs %+v", a, b)
	}
}

// TestEvaluate_HaltInvariant HALT 不变量：置信度 0、模式 OFF、kill switch 动作。
func TestEvaluate_HaltInvariant(t *testing.T) {
	ev, clock := newTestEvaluator()
	haltStates := []SystemState{
		{KillSwitch: true},
		{EmergencyStop: true},
		{RealityGap: Float(0.95)},
		{LastDataTs: clock.now.Add(-time.Hour).UnixMilli()},
		{DrawdownPct: Float(50)},
		{DailyLossUSD: Float(-99999)},
	}
	for i, s := range haltStates {
		v := ev.Evaluate(s)
		if v.Decision != DecisionHalt {
			t.Errorf("case %d: expected HALT, got %s", i, v.Decision)
			continue
		}
		if v.Confidence != 0 || v.Mode != ModeOff || !v.Actions.KillSwitch {
			t.Errorf("case %d: HALT invariant violated: %+v", i, v)
		}
		if len(v.ReasonCodes) == 0 {
			t.Errorf("case %d: reason codes must be non-empty", i)
		}
	}
}

func TestEvaluate_LimitsSnapshotCopied(t *testing.T) {
	ev, _ := newTestEvaluator()
	v := ev.Evaluate(SystemState{})
	if v.Limits != DefaultThresholds() {
		t.Errorf("verdict must carry the thresholds used: %+v", v.Limits)
	}
}
