package healing

import "time"

// Clock 抽象时间便于测试（熔断超时采用惰性判定，无后台定时器）。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var systemClock Clock = realClock{}
