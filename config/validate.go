package config

import "fmt"

// Validate ensures required fields are present and thresholds are sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if err := validateThresholds(cfg); err != nil {
		return err
	}
	if cfg.Guard.Gates.MaxPositionSizeUSD <= 0 {
		return ErrInvalid("guard.gates.maxPositionSizeUSD must be > 0")
	}
	if cfg.Guard.Gates.MaxDailyLossUSD <= 0 {
		return ErrInvalid("guard.gates.maxDailyLossUSD must be > 0")
	}
	if cfg.Guard.QueueSize < 0 {
		return ErrInvalid("guard.queueSize must be >= 0")
	}
	if cfg.Healing.Retry.MaxRetries < 0 {
		return ErrInvalid("healing.retry.maxRetries must be >= 0")
	}
	if cfg.Healing.Retry.BaseDelayMs < 0 || cfg.Healing.Retry.MaxDelayMs < 0 {
		return ErrInvalid("healing.retry delays must be >= 0")
	}
	for name, b := range cfg.Healing.Breakers {
		if b.FailureThreshold < 0 || b.SuccessThreshold < 0 || b.TimeoutS < 0 {
			return ErrInvalid(fmt.Sprintf("healing.breakers.%s thresholds must be >= 0", name))
		}
	}
	if cfg.Control.CycleIntervalMs <= 0 {
		return ErrInvalid("control.cycleIntervalMs must be > 0")
	}
	return nil
}

func validateThresholds(cfg AppConfig) error {
	t := cfg.Thresholds
	if t.RealityGapHalt <= 0 || t.RealityGapHalt > 1 {
		return ErrInvalid("thresholds.realityGapHalt must be in (0,1]")
	}
	if t.StalenessMs < 0 {
		return ErrInvalid("thresholds.stalenessMs must be >= 0")
	}
	if t.MaxDrawdownHaltPct <= 0 {
		return ErrInvalid("thresholds.maxDrawdownHaltPct must be > 0")
	}
	if t.MaxDailyLossHaltUSD <= 0 {
		return ErrInvalid("thresholds.maxDailyLossHaltUSD must be > 0")
	}
	if t.LatencyDegradedMs <= 0 {
		return ErrInvalid("thresholds.latencyDegradedMs must be > 0")
	}
	if t.RejectionRateDegraded <= 0 || t.RejectionRateDegraded > 1 {
		return ErrInvalid("thresholds.rejectionRateDegraded must be in (0,1]")
	}
	if t.SlippageDegradedBps <= 0 {
		return ErrInvalid("thresholds.slippageDegradedBps must be > 0")
	}
	if t.ConfidenceFloor < 0 || t.ConfidenceFloor >= 1 {
		return ErrInvalid("thresholds.confidenceFloor must be in [0,1)")
	}
	if t.ReduceRiskPct < 0 || t.ReduceRiskPct > 100 {
		return ErrInvalid("thresholds.reduceRiskPct must be in [0,100]")
	}
	if t.CooldownS < 0 {
		return ErrInvalid("thresholds.cooldownS must be >= 0")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
