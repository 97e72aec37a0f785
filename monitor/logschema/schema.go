package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"verdict": {
		Event:    "verdict",
		Required: []string{"decision", "mode", "reasons", "confidence"},
	},
	"mode_transition": {
		Event:    "mode_transition",
		Required: []string{"from", "to", "success"},
	},
	"halt": {
		Event:    "halt",
		Required: []string{"reason"},
	},
	"manual_reset": {
		Event:    "manual_reset",
		Required: []string{"requested_by"},
	},
	"safety_block": {
		Event:    "safety_block",
		Required: []string{"gate", "code", "reason"},
	},
	"audit_order": {
		Event:    "audit_order",
		Required: []string{"order_id", "side", "size", "price", "mode"},
	},
	"order_commit": {
		Event:    "order_commit",
		Required: []string{"order_id", "status"},
	},
	"emergency_stop": {
		Event:    "emergency_stop",
		Required: []string{"reason"},
	},
	"breaker_transition": {
		Event:    "breaker_transition",
		Required: []string{"operation", "from", "to"},
	},
	"auto_repair": {
		Event:    "auto_repair",
		Required: []string{"breakers_reset"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查事件字段是否包含 schema 中要求的 key。
// 未登记的事件不做约束。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
