package exec

import (
	"errors"
	"fmt"
)

// 稳定的拒单码。策略拒绝是预期内的控制流，不是异常。
const (
	RejectBadIntent            = "REJECT_BAD_INTENT"
	RejectModeBlocked          = "REJECT_MODE_BLOCKED"
	RejectEmergencyStop        = "REJECT_EMERGENCY_STOP"
	RejectPositionCap          = "REJECT_POSITION_CAP"
	RejectDailyLossCap         = "REJECT_DAILY_LOSS_CAP"
	RejectConfirmationRequired = "REJECT_CONFIRMATION_REQUIRED"
	RejectCircuitOpen          = "REJECT_CIRCUIT_OPEN"
	RejectExecutionFailed      = "REJECT_EXECUTION_FAILED"
	RejectInternal             = "REJECT_INTERNAL"
	RejectNotRunning           = "REJECT_NOT_RUNNING"
)

// Rejection 带稳定机读码与可读原因的类型化拒单。
type Rejection struct {
	Code   string `json:"code"`
	Gate   string `json:"gate,omitempty"`
	Reason string `json:"reason"`
}

func (r *Rejection) Error() string {
	if r.Gate != "" {
		return fmt.Sprintf("%s [%s]: %s", r.Code, r.Gate, r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func reject(gate, code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Gate: gate, Reason: fmt.Sprintf(format, args...)}
}

// AsRejection 从错误链中提取类型化拒单。
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejectionCode 判断错误是否携带指定拒单码。
func IsRejectionCode(err error, code string) bool {
	if r, ok := AsRejection(err); ok {
		return r.Code == code
	}
	return false
}
