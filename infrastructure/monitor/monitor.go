package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trade-governor-go/internal/governance"
	"trade-governor-go/internal/healing"
	"trade-governor-go/internal/truth"
)

// StatusSource 运维端点的数据来源（控制面实现）。
type StatusSource interface {
	Mode() truth.Mode
	HaltActive() bool
	HaltReason() string
	History() []governance.TransitionResult
	Health() healing.HealthReport
}

// Config 运维端点配置
type Config struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Addr: ":9090"}
}

// OpsServer 运维 HTTP 端点：/metrics、/healthz、/status。
// 只读，不提供任何改变系统状态的操作。
type OpsServer struct {
	cfg    Config
	source StatusSource
	logger *zap.Logger
	srv    *http.Server
}

// New 创建运维端点
func New(cfg Config, source StatusSource, logger *zap.Logger) *OpsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsServer{cfg: cfg, source: source, logger: logger}
}

// Start 启动 HTTP 服务
func (o *OpsServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", o.handleHealthz)
	mux.HandleFunc("/status", o.handleStatus)

	o.srv = &http.Server{Addr: o.cfg.Addr, Handler: mux}
	go func() {
		if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.logger.Error("ops server failed", zap.Error(err))
		}
	}()
	o.logger.Info("ops server listening", zap.String("addr", o.cfg.Addr))
	return nil
}

// Stop 优雅停止
func (o *OpsServer) Stop() error {
	if o.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return o.srv.Shutdown(ctx)
}

// Handler 返回 HTTP handler（测试用）
func (o *OpsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", o.handleHealthz)
	mux.HandleFunc("/status", o.handleStatus)
	return mux
}

func (o *OpsServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	report := o.source.Health()
	w.Header().Set("Content-Type", "application/json")
	if !report.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

type statusResponse struct {
	Mode       truth.Mode                    `json:"mode"`
	HaltActive bool                          `json:"halt_active"`
	HaltReason string                        `json:"halt_reason,omitempty"`
	History    []governance.TransitionResult `json:"history"`
}

func (o *OpsServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Mode:       o.source.Mode(),
		HaltActive: o.source.HaltActive(),
		HaltReason: o.source.HaltReason(),
		History:    o.source.History(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
