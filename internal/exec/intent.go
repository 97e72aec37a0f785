package exec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade-governor-go/internal/truth"
)

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 订单类型。
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderIntent 策略层产出的下单意图，消费一次即弃。
// 只会被整体接受或整体拒绝，不存在部分接受。
type OrderIntent struct {
	Side  Side      `json:"side"`
	Size  float64   `json:"size"`  // 名义 USD，必须为有限正数
	Price float64   `json:"price"` // 必须为有限正数
	Type  OrderType `json:"type"`
}

// SignedSize 带符号名义：BUY 为正，SELL 为负。
func (i OrderIntent) SignedSize() float64 {
	if i.Side == SideSell {
		return -i.Size
	}
	return i.Size
}

// ExecutionContext 用于派生确定性订单 ID：相同历史输入的重放
// 必须产生相同的订单标识，供审计对账。OrderSeq 由执行守卫填充。
type ExecutionContext struct {
	RunID      string     `json:"run_id"`
	StrategyID string     `json:"strategy_id"`
	Mode       truth.Mode `json:"mode"`
	BarIdx     int64      `json:"bar_idx"`
	OrderSeq   int64      `json:"order_seq"`
}

// NewRunID 生成新的运行标识。
func NewRunID() string { return uuid.NewString() }

// OrderID 上下文的稳定哈希，取前 16 个十六进制字符。
func (c ExecutionContext) OrderID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d",
		c.RunID, c.StrategyID, c.Mode, c.BarIdx, c.OrderSeq)))
	return hex.EncodeToString(sum[:])[:16]
}

// Receipt 提交成功的回执。
type Receipt struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
