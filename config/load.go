package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trade-governor-go/internal/exec"
	"trade-governor-go/internal/healing"
	"trade-governor-go/internal/truth"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Log        LogConfig        `yaml:"log"`
	Thresholds truth.Thresholds `yaml:"thresholds"`
	Guard      exec.GuardConfig `yaml:"guard"`
	Healing    HealingConfig    `yaml:"healing"`
	Control    ControlConfig    `yaml:"control"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LogConfig struct {
	Level   string `yaml:"level"`   // debug/info/warn/error
	Console bool   `yaml:"console"` // 控制台友好输出
}

// HealingConfig 自愈层配置。时长一律用毫秒/秒整数表示，避免
// 在 YAML 里写 duration 字符串。
type HealingConfig struct {
	Retry    RetryConfig              `yaml:"retry"`
	Breakers map[string]BreakerConfig `yaml:"breakers"`
}

type RetryConfig struct {
	MaxRetries        int     `yaml:"maxRetries"`
	BaseDelayMs       int     `yaml:"baseDelayMs"`
	MaxDelayMs        int     `yaml:"maxDelayMs"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
}

// ToRetry 转成自愈层的重试配置。
func (r RetryConfig) ToRetry() healing.RetryConfig {
	return healing.RetryConfig{
		MaxRetries:        r.MaxRetries,
		BaseDelay:         time.Duration(r.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(r.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failureThreshold"`
	SuccessThreshold int `yaml:"successThreshold"`
	TimeoutS         int `yaml:"timeoutS"`
}

// ToBreaker 转成自愈层的熔断器配置。
func (b BreakerConfig) ToBreaker() healing.BreakerConfig {
	return healing.BreakerConfig{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		Timeout:          time.Duration(b.TimeoutS) * time.Second,
	}
}

type ControlConfig struct {
	CycleIntervalMs int `yaml:"cycleIntervalMs"`
}

// CycleInterval 返回评估周期。
func (c ControlConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMs) * time.Millisecond
}

type TelemetryConfig struct {
	FeedURL string `yaml:"feedURL"` // 为空表示不接遥测流
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空表示不开指标端点
}

// Default 返回带默认值的配置，Load 在其上做增量覆盖。
func Default() AppConfig {
	return AppConfig{
		Env:        "dev",
		Log:        LogConfig{Level: "info"},
		Thresholds: truth.DefaultThresholds(),
		Guard:      exec.DefaultGuardConfig(),
		Healing: HealingConfig{
			Retry: RetryConfig{
				MaxRetries:        3,
				BaseDelayMs:       200,
				MaxDelayMs:        5000,
				BackoffMultiplier: 2.0,
			},
			Breakers: map[string]BreakerConfig{
				"orderPlacement": {FailureThreshold: 5, SuccessThreshold: 3, TimeoutS: 30},
			},
		},
		Control: ControlConfig{CycleIntervalMs: 1000},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deploy-specific fields
// from GOV_* env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("GOV_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("GOV_FEED_URL"); v != "" {
		cfg.Telemetry.FeedURL = v
	}
	if v := os.Getenv("GOV_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}
