package telemetry

import (
	"context"
	"sync"

	"trade-governor-go/internal/exec"
	"trade-governor-go/internal/truth"
)

// AdapterView 执行适配器的只读视图。
type AdapterView interface {
	Snapshot(ctx context.Context) (exec.AdapterSnapshot, error)
}

// Collector 每个评估周期把遥测帧、执行适配器状态与人工总闸
// 聚合成一份系统状态快照。快照用后即弃，绝不复用。
type Collector struct {
	source SampleSource
	guard  AdapterView

	mu         sync.Mutex
	killSwitch bool
	killReason string
}

// NewCollector 创建聚合器。source 与 guard 均可为 nil（对应信号缺失）。
func NewCollector(source SampleSource, guard AdapterView) *Collector {
	return &Collector{source: source, guard: guard}
}

// ActivateKillSwitch 闭锁人工总闸。
func (c *Collector) ActivateKillSwitch(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = true
	c.killReason = reason
}

// ResetKillSwitch 解除人工总闸（仅限人工复位流程调用）。
func (c *Collector) ResetKillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = false
	c.killReason = ""
}

// KillSwitch 返回总闸状态与原因。
func (c *Collector) KillSwitch() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killSwitch, c.killReason
}

// Collect 组装当前周期的系统状态快照。
func (c *Collector) Collect(ctx context.Context, requested truth.Mode) (truth.SystemState, error) {
	c.mu.Lock()
	st := truth.SystemState{
		KillSwitch:    c.killSwitch,
		RequestedMode: requested,
	}
	c.mu.Unlock()

	if c.guard != nil {
		snap, err := c.guard.Snapshot(ctx)
		if err != nil {
			return truth.SystemState{}, err
		}
		st.EmergencyStop = snap.EmergencyStop
		if snap.DailyPnL < 0 {
			st.DailyLossUSD = truth.Float(snap.DailyPnL)
		}
	}

	if c.source != nil {
		if s, ok := c.source.Latest(); ok {
			st.RealityGap = s.RealityGap
			st.DrawdownPct = s.DrawdownPct
			st.PerfP99Ms = s.PerfP99Ms
			st.RejectionRate = s.RejectionRate
			st.AvgSlippageBps = s.AvgSlippageBps
			st.SystemConfidence = s.SystemConfidence
			st.LastDataTs = s.TsMs
		}
	}
	return st, nil
}
