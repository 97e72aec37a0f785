package healing

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestBreaker(t *testing.T, cfg BreakerConfig) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewCircuitBreakerWithClock("test_op", cfg, clock), clock
}

func TestBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{})
	if cb.cfg.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cb.cfg.FailureThreshold)
	}
	if cb.cfg.SuccessThreshold != 3 {
		t.Errorf("expected default success threshold 3, got %d", cb.cfg.SuccessThreshold)
	}
	if cb.cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cb.cfg.Timeout)
	}
}

// TestBreaker_FullCycle 完整循环：CLOSED→OPEN→HALF_OPEN→CLOSED。
func TestBreaker_FullCycle(t *testing.T) {
	cb, clock := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
	})
	failErr := errors.New("boom")

	// 未达阈值保持 CLOSED
	cb.Call(func() error { return failErr })
	cb.Call(func() error { return failErr })
	if !cb.IsClosed() {
		t.Fatal("expected CLOSED before threshold")
	}

	// 第 3 次连续失败熔断
	cb.Call(func() error { return failErr })
	if !cb.IsOpen() {
		t.Fatalf("expected OPEN after threshold, got %s", cb.GetState())
	}

	// 熔断期间拒绝
	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}

	// 超时后惰性转入半开
	clock.advance(150 * time.Millisecond)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected success in half-open, got %v", err)
	}
	if !cb.IsHalfOpen() {
		t.Fatalf("expected HALF_OPEN, got %s", cb.GetState())
	}

	// 达到成功阈值后关闭
	cb.Call(func() error { return nil })
	if !cb.IsClosed() {
		t.Fatalf("expected CLOSED after success threshold, got %s", cb.GetState())
	}
}

// TestBreaker_HalfOpenFailureReopens 半开状态下任何失败立即重新熔断。
func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 3,
		Timeout:          50 * time.Millisecond,
	})
	failErr := errors.New("boom")

	cb.Call(func() error { return failErr })
	cb.Call(func() error { return failErr })
	if !cb.IsOpen() {
		t.Fatal("expected OPEN")
	}

	clock.advance(60 * time.Millisecond)
	cb.Call(func() error { return nil })
	if !cb.IsHalfOpen() {
		t.Fatal("expected HALF_OPEN")
	}

	cb.Call(func() error { return failErr })
	if !cb.IsOpen() {
		t.Fatalf("expected reopen after half-open failure, got %s", cb.GetState())
	}
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Second})
	failErr := errors.New("boom")

	cb.Call(func() error { return failErr })
	cb.Call(func() error { return failErr })
	cb.Call(func() error { return nil }) // 打断连续失败
	cb.Call(func() error { return failErr })
	cb.Call(func() error { return failErr })
	if !cb.IsClosed() {
		t.Fatalf("expected CLOSED, consecutive counter should reset on success, got %s", cb.GetState())
	}
	cb.Call(func() error { return failErr })
	if !cb.IsOpen() {
		t.Fatal("expected OPEN after 3 consecutive failures")
	}
}

func TestBreaker_ResetAndForceOpen(t *testing.T) {
	cb, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})

	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("expected OPEN")
	}
	cb.Reset()
	if !cb.IsClosed() {
		t.Fatal("expected CLOSED after reset")
	}
	m := cb.Metrics()
	if m.FailureCount != 0 || m.ConsecutiveFails != 0 {
		t.Errorf("expected counters cleared, got %+v", m)
	}

	cb.ForceOpen()
	if !cb.IsOpen() {
		t.Fatal("expected OPEN after ForceOpen")
	}
}

func TestBreaker_OnTransition(t *testing.T) {
	cb, clock := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})

	var got [][2]State
	cb.OnTransition = func(name string, from, to State) {
		if name != "test_op" {
			t.Errorf("unexpected name %s", name)
		}
		got = append(got, [2]State{from, to})
	}

	cb.RecordFailure() // CLOSED→OPEN
	clock.advance(20 * time.Millisecond)
	cb.Call(func() error { return nil }) // OPEN→HALF_OPEN→CLOSED

	want := [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %v→%v want %v→%v",
				i, got[i][0], got[i][1], want[i][0], want[i][1])
		}
	}
}
