package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"trade-governor-go/monitor/logschema"
)

// 事件类别。
const (
	CategorySys  = "SYS"
	CategoryExec = "EXEC"
	CategoryRisk = "RISK"
)

// Event 结构化事件记录。核心只负责产出，不关心持久化方式。
type Event struct {
	TsMs     int64                  `json:"ts_ms"`
	Category string                 `json:"category"`
	Event    string                 `json:"event"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Sink 事件落地端口。实现必须容错：落地失败不得影响调用方。
type Sink interface {
	Emit(category, event string, payload map[string]interface{})
}

// ZapSink 基于 zap 的默认事件落地，写入前做 schema 校验。
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink 创建 zap 事件落地。
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(category, event string, payload map[string]interface{}) {
	if s == nil || s.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("ts_ms", time.Now().UnixMilli()),
		zap.String("category", category),
		zap.Any("payload", payload),
	}
	if err := logschema.Validate(event, payload); err != nil {
		fields = append(fields, zap.String("_schema_error", err.Error()))
	}
	s.logger.Info(event, fields...)
}

// NopSink 丢弃所有事件。
type NopSink struct{}

func (NopSink) Emit(string, string, map[string]interface{}) {}

// MemorySink 仅供测试：在内存中收集事件。
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Emit(category, event string, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		TsMs:     time.Now().UnixMilli(),
		Category: category,
		Event:    event,
		Payload:  payload,
	})
}

// Events 返回已收集事件的拷贝。
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByName 返回指定名称的事件。
func (m *MemorySink) ByName(event string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
