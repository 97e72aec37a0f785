package healing

import (
	"context"
	"errors"
	"testing"
	"time"
)

// noSleepRetryer 替换 sleep 并记录退避序列，测试免等待。
func noSleepRetryer(cfg RetryConfig) (*Retryer, *[]time.Duration) {
	r := NewRetryer(cfg)
	delays := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return r, delays
}

func TestRetry_SucceedsWithoutRetry(t *testing.T) {
	r, delays := noSleepRetryer(DefaultRetryConfig())
	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || len(*delays) != 0 {
		t.Errorf("expected single call without backoff, calls=%d delays=%v", calls, *delays)
	}
}

func TestRetry_ExponentialBackoffCapped(t *testing.T) {
	r, delays := noSleepRetryer(RetryConfig{
		MaxRetries:        4,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	failErr := errors.New("boom")
	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return failErr
	})

	if !errors.Is(err, failErr) {
		t.Fatalf("expected final error surfaced, got %v", err)
	}
	if calls != 5 { // 首次 + 4 次重试
		t.Errorf("expected 5 calls, got %d", calls)
	}
	// 100ms, 200ms, 然后封顶 300ms
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoffs, got %v", len(want), *delays)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("backoff %d: got %v want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestRetry_RecoversMidway(t *testing.T) {
	r, _ := noSleepRetryer(DefaultRetryConfig())
	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel() // 第一次退避时取消
		return ctx.Err()
	}
	err := r.Do(ctx, "op", func() error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no further calls after cancel, got %d", calls)
	}
}
