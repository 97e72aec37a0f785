package healing

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	MaxRetries        int           `yaml:"maxRetries"`        // 首次之外的最大重试次数
	BaseDelay         time.Duration `yaml:"baseDelay"`         // 首次重试前的等待
	MaxDelay          time.Duration `yaml:"maxDelay"`          // 退避上限
	BackoffMultiplier float64       `yaml:"backoffMultiplier"` // 指数退避倍率
}

// DefaultRetryConfig 返回默认配置。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// Retryer 指数退避重试。delay = baseDelay × multiplier^attempt，封顶 maxDelay；
// 耗尽后返回最后一次错误。
type Retryer struct {
	cfg RetryConfig

	// sleep 可替换以便测试免等待。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer 创建重试器。
func NewRetryer(cfg RetryConfig) *Retryer {
	return &Retryer{
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
	}
}

// Do 执行 fn，失败时按退避重试。ctx 取消立即中止。
func (r *Retryer) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.delay(attempt-1)); err != nil {
				return fmt.Errorf("%s aborted: %w", op, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s aborted: %w", op, err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, r.cfg.MaxRetries, lastErr)
}

// delay 计算第 attempt 次重试前的等待（attempt 从 0 计）。
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= r.cfg.BackoffMultiplier
	}
	if d > float64(r.cfg.MaxDelay) {
		return r.cfg.MaxDelay
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
