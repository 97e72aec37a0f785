package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Sample 遥测流推送的一帧观测数据。可选信号用指针表示，
// 缺失与数值 0 严格区分。
type Sample struct {
	RealityGap       *float64 `json:"reality_gap,omitempty"`
	DrawdownPct      *float64 `json:"current_drawdown_pct,omitempty"`
	PerfP99Ms        *float64 `json:"perf_p99_ms,omitempty"`
	RejectionRate    *float64 `json:"rejection_rate,omitempty"`
	AvgSlippageBps   *float64 `json:"avg_slippage_bps,omitempty"`
	SystemConfidence *float64 `json:"system_confidence,omitempty"`
	TsMs             int64    `json:"ts"`
}

// SampleSource 最新遥测帧的来源。
type SampleSource interface {
	// Latest 返回最近一帧与是否已收到过任何数据。
	Latest() (Sample, bool)
}

// WSFeed 通过 WebSocket 订阅遥测流，持续保存最新一帧。
// 断线自动重连，指数退避封顶。
type WSFeed struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.RWMutex
	latest Sample
	seen   bool

	started  bool
	stopChan chan struct{}
	doneChan chan struct{}
	startOne sync.Once
	stopOne  sync.Once
}

// NewWSFeed 创建遥测订阅器。
func NewWSFeed(url string, logger *zap.Logger) *WSFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSFeed{
		url:      url,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start 启动读取协程。
func (f *WSFeed) Start() {
	f.startOne.Do(func() {
		f.mu.Lock()
		f.started = true
		f.mu.Unlock()
		go f.run()
	})
}

// Stop 停止读取协程并等待退出。未启动时直接返回。
func (f *WSFeed) Stop() {
	f.stopOne.Do(func() { close(f.stopChan) })
	f.mu.RLock()
	started := f.started
	f.mu.RUnlock()
	if !started {
		return
	}
	<-f.doneChan
}

// Latest 实现 SampleSource。
func (f *WSFeed) Latest() (Sample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.seen
}

func (f *WSFeed) run() {
	defer close(f.doneChan)
	backoff := time.Second
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}
		if err := f.readLoop(); err != nil {
			f.logger.Warn("telemetry feed disconnected",
				zap.String("url", f.url),
				zap.Error(err))
		}
		select {
		case <-f.stopChan:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *WSFeed) readLoop() error {
	conn, _, err := f.dialer.Dial(f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.logger.Info("telemetry feed connected", zap.String("url", f.url))

	for {
		select {
		case <-f.stopChan:
			return nil
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var s Sample
		if err := json.Unmarshal(message, &s); err != nil {
			f.logger.Warn("telemetry frame malformed", zap.Error(err))
			continue
		}
		f.mu.Lock()
		f.latest = s
		f.seen = true
		f.mu.Unlock()
	}
}

// StaticSource 固定遥测帧来源，诊断与测试用。
type StaticSource struct {
	mu     sync.Mutex
	sample Sample
	seen   bool
}

// Set 替换当前帧。
func (s *StaticSource) Set(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.seen = true
}

// Latest 实现 SampleSource。
func (s *StaticSource) Latest() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample, s.seen
}
