package telemetry

import (
	"context"
	"errors"
	"testing"

	"trade-governor-go/internal/exec"
	"trade-governor-go/internal/truth"
)

type fakeAdapter struct {
	snap exec.AdapterSnapshot
	err  error
}

func (f *fakeAdapter) Snapshot(context.Context) (exec.AdapterSnapshot, error) {
	return f.snap, f.err
}

func TestCollect_EmptySources(t *testing.T) {
	c := NewCollector(nil, nil)
	st, err := c.Collect(context.Background(), truth.ModePaper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.KillSwitch || st.EmergencyStop {
		t.Error("fresh collector must not report any latched condition")
	}
	if st.RealityGap != nil || st.DailyLossUSD != nil {
		t.Error("missing signals must stay nil, not zero")
	}
	if st.LastDataTs != 0 {
		t.Errorf("no feed means no data timestamp, got %d", st.LastDataTs)
	}
	if st.RequestedMode != truth.ModePaper {
		t.Errorf("requested mode not carried: %s", st.RequestedMode)
	}
}

func TestCollect_MergesFeedAndAdapter(t *testing.T) {
	src := &StaticSource{}
	src.Set(Sample{
		RealityGap:    truth.Float(0.4),
		RejectionRate: truth.Float(0.1),
		TsMs:          1_700_000_000_000,
	})
	guard := &fakeAdapter{snap: exec.AdapterSnapshot{
		DailyPnL:      -250,
		EmergencyStop: true,
	}}

	c := NewCollector(src, guard)
	st, err := c.Collect(context.Background(), truth.ModeLive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.RealityGap == nil || *st.RealityGap != 0.4 {
		t.Errorf("reality gap not carried: %v", st.RealityGap)
	}
	if st.LastDataTs != 1_700_000_000_000 {
		t.Errorf("data timestamp not carried: %d", st.LastDataTs)
	}
	if !st.EmergencyStop {
		t.Error("adapter emergency stop must surface in the snapshot")
	}
	if st.DailyLossUSD == nil || *st.DailyLossUSD != -250 {
		t.Errorf("daily loss not carried: %v", st.DailyLossUSD)
	}
}

func TestCollect_ProfitIsNotALoss(t *testing.T) {
	guard := &fakeAdapter{snap: exec.AdapterSnapshot{DailyPnL: 300}}
	c := NewCollector(nil, guard)
	st, err := c.Collect(context.Background(), truth.ModePaper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DailyLossUSD != nil {
		t.Errorf("positive pnl must not populate daily loss: %v", st.DailyLossUSD)
	}
}

func TestCollect_AdapterErrorPropagates(t *testing.T) {
	guard := &fakeAdapter{err: errors.New("adapter down")}
	c := NewCollector(nil, guard)
	if _, err := c.Collect(context.Background(), truth.ModePaper); err == nil {
		t.Fatal("expected error from adapter")
	}
}

func TestKillSwitchLatch(t *testing.T) {
	c := NewCollector(nil, nil)
	c.ActivateKillSwitch("operator hit the button")

	st, err := c.Collect(context.Background(), truth.ModeLive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.KillSwitch {
		t.Fatal("kill switch must surface in every snapshot until reset")
	}
	on, reason := c.KillSwitch()
	if !on || reason != "operator hit the button" {
		t.Errorf("latch state wrong: %v %q", on, reason)
	}

	c.ResetKillSwitch()
	st, _ = c.Collect(context.Background(), truth.ModeLive)
	if st.KillSwitch {
		t.Error("reset must clear the latch")
	}
}
