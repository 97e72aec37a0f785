package governance

import (
	"sync"
	"time"

	"trade-governor-go/internal/truth"
)

// historyCap 保留最近的转换记录条数。
const historyCap = 100

// TransitionResult 单次转换的结果。
type TransitionResult struct {
	Success             bool       `json:"success"`
	From                truth.Mode `json:"from"`
	To                  truth.Mode `json:"to"`
	Reason              string     `json:"reason"`
	Forced              bool       `json:"forced,omitempty"`
	ManualResetRequired bool       `json:"manual_reset_required,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}

type edge struct {
	from truth.Mode
	to   truth.Mode
}

// legalTransitions 显式转换表。HALT 不在表内：它是叠加在状态机之上的元状态。
var legalTransitions = map[edge]bool{
	// OFF 可以转到
	{truth.ModeOff, truth.ModePaper}:      true,
	{truth.ModeOff, truth.ModeDiagnostic}: true,

	// PAPER 可以转到
	{truth.ModePaper, truth.ModeOff}:        true,
	{truth.ModePaper, truth.ModeLiveSmall}:  true,
	{truth.ModePaper, truth.ModeDiagnostic}: true,

	// LIVE_SMALL 可以转到
	{truth.ModeLiveSmall, truth.ModeOff}:        true,
	{truth.ModeLiveSmall, truth.ModePaper}:      true,
	{truth.ModeLiveSmall, truth.ModeLive}:       true,
	{truth.ModeLiveSmall, truth.ModeDiagnostic}: true,

	// LIVE 可以转到
	{truth.ModeLive, truth.ModeOff}:        true,
	{truth.ModeLive, truth.ModePaper}:      true,
	{truth.ModeLive, truth.ModeLiveSmall}:  true,
	{truth.ModeLive, truth.ModeDiagnostic}: true,

	// DIAGNOSTIC 可以转到
	{truth.ModeDiagnostic, truth.ModeOff}:   true,
	{truth.ModeDiagnostic, truth.ModePaper}: true,
}

// FSM 治理状态机。模式转换只能经由 Transition 发生；
// HALT 裁决无条件强制 OFF，之后只有人工复位路径可以恢复。
type FSM struct {
	mu sync.Mutex

	current  truth.Mode
	previous truth.Mode

	haltActive           bool
	haltReason           string
	manualResetRequested bool

	history []TransitionResult
	clock   truth.Clock
}

// New 创建状态机，初始模式 OFF。
func New() *FSM {
	return &FSM{current: truth.ModeOff, previous: truth.ModeOff, clock: truth.NowUTC}
}

// NewWithClock 注入时钟，便于测试。
func NewWithClock(clock truth.Clock) *FSM {
	return &FSM{current: truth.ModeOff, previous: truth.ModeOff, clock: clock}
}

// Transition 根据裁决处理一次模式转换请求。
//
// 优先级（不可调换）：
//  1. HALT 裁决无条件强制 OFF，即便请求的转换本身非法；
//  2. 停机未复位期间拒绝一切请求；
//  3. 已请求复位且裁决非 HALT 时清除停机，继续正常校验；
//  4. 查转换表；
//  5. ALLOW 裁决下求值器的模式建议是权威，请求模式必须与之一致。
func (f *FSM) Transition(requested truth.Mode, v truth.Verdict) TransitionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()

	if v.Halted() {
		res := TransitionResult{
			Success:   true,
			From:      f.current,
			To:        truth.ModeOff,
			Reason:    haltReasonOf(v),
			Forced:    true,
			Timestamp: now,
		}
		f.previous = f.current
		f.current = truth.ModeOff
		f.haltActive = true
		f.haltReason = res.Reason
		f.append(res)
		return res
	}

	if f.haltActive {
		if !f.manualResetRequested {
			return TransitionResult{
				From:                f.current,
				To:                  f.current,
				Reason:              "halt active, manual reset required",
				ManualResetRequired: true,
				Timestamp:           now,
			}
		}
		// 复位只在下一次 Transition 且裁决非 HALT 时生效，避免复位竞态。
		f.haltActive = false
		f.haltReason = ""
		f.manualResetRequested = false
	}

	if !requested.Valid() {
		return TransitionResult{
			From: f.current, To: f.current,
			Reason:    "Invalid transition",
			Timestamp: now,
		}
	}

	if requested == f.current {
		// 留在当前模式不是转换，直接成功，不进历史。
		return TransitionResult{
			Success: true,
			From:    f.current, To: f.current,
			Reason:    "no-op",
			Timestamp: now,
		}
	}

	if !legalTransitions[edge{f.current, requested}] {
		return TransitionResult{
			From: f.current, To: f.current,
			Reason:    "Invalid transition",
			Timestamp: now,
		}
	}

	if v.Decision == truth.DecisionAllow && v.Mode != requested {
		return TransitionResult{
			From: f.current, To: f.current,
			Reason:    "mode not approved by evaluator",
			Timestamp: now,
		}
	}

	res := TransitionResult{
		Success:   true,
		From:      f.current,
		To:        requested,
		Reason:    "ok",
		Timestamp: now,
	}
	f.previous = f.current
	f.current = requested
	f.append(res)
	return res
}

// RequestManualReset 登记人工复位请求。只设置标志，
// 在下一次观察到非 HALT 裁决的 Transition 调用时才生效。
func (f *FSM) RequestManualReset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualResetRequested = true
}

// Mode 返回当前模式。
func (f *FSM) Mode() truth.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// PreviousMode 返回上一个模式。
func (f *FSM) PreviousMode() truth.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.previous
}

// HaltActive 返回是否处于停机元状态。
func (f *FSM) HaltActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.haltActive
}

// HaltReason 返回停机原因。
func (f *FSM) HaltReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.haltReason
}

// History 返回转换历史的拷贝（最多最近 100 条）。
func (f *FSM) History() []TransitionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TransitionResult, len(f.history))
	copy(out, f.history)
	return out
}

func (f *FSM) append(res TransitionResult) {
	f.history = append(f.history, res)
	if len(f.history) > historyCap {
		f.history = f.history[len(f.history)-historyCap:]
	}
}

func haltReasonOf(v truth.Verdict) string {
	if len(v.ReasonCodes) > 0 {
		return v.ReasonCodes[0]
	}
	return "HALT"
}
