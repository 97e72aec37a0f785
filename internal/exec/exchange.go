package exec

import (
	"context"
	"sync"

	"trade-governor-go/internal/truth"
)

// Order 提交给交易所客户端的订单。
type Order struct {
	ID    string
	Side  Side
	Size  float64
	Price float64
	Type  OrderType
	Mode  truth.Mode
}

// Ack 交易所确认。
type Ack struct {
	OrderID string
	Status  string
}

// Exchange 交易所客户端端口。真实客户端（含超时处理）是外部协作方，
// 其失败以普通错误进入 fail-closed 路径。
type Exchange interface {
	Submit(ctx context.Context, o Order) (Ack, error)
}

// PaperExchange 纸面交易所：立即确认并在内存中留痕，供 PAPER 模式与测试使用。
type PaperExchange struct {
	mu       sync.Mutex
	accepted []Order
}

// NewPaperExchange 创建纸面交易所。
func NewPaperExchange() *PaperExchange { return &PaperExchange{} }

func (p *PaperExchange) Submit(_ context.Context, o Order) (Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, o)
	return Ack{OrderID: o.ID, Status: "ACCEPTED"}, nil
}

// Orders 返回已确认订单的拷贝。
func (p *PaperExchange) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.accepted))
	copy(out, p.accepted)
	return out
}
