package exec

import "regexp"

// secretPattern 匹配常见的密钥字段写法（apiKey=xxx、secret: xxx 等）。
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret|token|passphrase|password)(\s*[=:]\s*)[^\s,;"']+`)

// Sanitize 在消息进入日志/事件之前抹除疑似密钥。
// 可观测性绝不能成为泄密通道。
func Sanitize(msg string) string {
	return secretPattern.ReplaceAllString(msg, "$1$2[REDACTED]")
}
