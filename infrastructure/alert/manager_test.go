package alert

import (
	"testing"
	"time"
)

func TestSendAlert_DeliversToAllChannels(t *testing.T) {
	ch1 := NewMockChannel("primary")
	ch2 := NewMockChannel("secondary")
	m := NewManager([]Channel{ch1, ch2}, time.Minute)

	if err := m.SendWarning("governance", "mode downgraded", map[string]interface{}{"to": "PAPER"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch1.Count() != 1 || ch2.Count() != 1 {
		t.Errorf("expected both channels to receive the alert, got %d/%d", ch1.Count(), ch2.Count())
	}

	got := ch1.GetAlerts()[0]
	if got.Level != LevelWarning || got.Source != "governance" {
		t.Errorf("alert fields wrong: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp must be filled in")
	}
}

func TestSendAlert_Throttled(t *testing.T) {
	ch := NewMockChannel("log")
	m := NewManager([]Channel{ch}, time.Hour)

	for i := 0; i < 5; i++ {
		_ = m.SendError("execution", "exchange timeout", nil)
	}
	if ch.Count() != 1 {
		t.Errorf("repeated alert must be throttled, got %d", ch.Count())
	}

	// 不同 source 不共享限流 key
	_ = m.SendError("healing", "exchange timeout", nil)
	if ch.Count() != 2 {
		t.Errorf("distinct sources must not share a throttle key, got %d", ch.Count())
	}
}

func TestSendAlert_CriticalNeverThrottled(t *testing.T) {
	ch := NewMockChannel("pager")
	m := NewManager([]Channel{ch}, time.Hour)

	for i := 0; i < 3; i++ {
		_ = m.SendCritical("governance", "halt forced", nil)
	}
	if ch.Count() != 3 {
		t.Errorf("critical alerts must bypass throttling, got %d", ch.Count())
	}
}

func TestSendAlert_AllChannelsFailing(t *testing.T) {
	ch := NewMockChannel("broken")
	ch.SetShouldError(true)
	m := NewManager([]Channel{ch}, time.Minute)

	if err := m.SendInfo("governance", "hello", nil); err == nil {
		t.Error("expected error when every channel fails")
	}
}

func TestSendAlert_PartialFailureIsOK(t *testing.T) {
	broken := NewMockChannel("broken")
	broken.SetShouldError(true)
	ok := NewMockChannel("ok")
	m := NewManager([]Channel{broken, ok}, time.Minute)

	if err := m.SendInfo("governance", "hello", nil); err != nil {
		t.Errorf("one healthy channel is enough: %v", err)
	}
	if ok.Count() != 1 {
		t.Errorf("healthy channel must still receive the alert, got %d", ok.Count())
	}
}

func TestChannelManagement(t *testing.T) {
	m := NewManager(nil, time.Minute)
	m.AddChannel(NewMockChannel("a"))
	m.AddChannel(NewMockChannel("b"))
	if len(m.GetChannels()) != 2 {
		t.Fatalf("expected 2 channels, got %v", m.GetChannels())
	}
	m.RemoveChannel("a")
	if got := m.GetChannels(); len(got) != 1 || got[0] != "b" {
		t.Errorf("remove failed: %v", got)
	}
}

func TestThrottlerReset(t *testing.T) {
	th := NewThrottler(time.Hour)
	if !th.Allow("k") {
		t.Fatal("first send must pass")
	}
	if th.Allow("k") {
		t.Fatal("second send must be throttled")
	}
	th.Reset("k")
	if !th.Allow("k") {
		t.Error("reset must clear the key")
	}
}
