package container

import (
	"context"
	"fmt"
	"time"

	"trade-governor-go/config"
	"trade-governor-go/infrastructure/alert"
	"trade-governor-go/infrastructure/logger"
	opsmon "trade-governor-go/infrastructure/monitor"
	cfgreload "trade-governor-go/internal/config"
	"trade-governor-go/internal/controlplane"
	"trade-governor-go/internal/exec"
	"trade-governor-go/internal/governance"
	"trade-governor-go/internal/healing"
	"trade-governor-go/internal/telemetry"
	"trade-governor-go/internal/truth"
	"trade-governor-go/monitor"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger *logger.Logger
	sink   monitor.Sink
	alerts *alert.Manager

	// 核心组件
	feed        *telemetry.WSFeed
	guard       *exec.Guard
	coordinator *healing.Coordinator
	collector   *telemetry.Collector
	control     *controlplane.ControlPlane

	// 运维面
	ops      *opsmon.OpsServer
	reloader *cfgreload.HotReloader

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildExecution(); err != nil {
		return fmt.Errorf("build execution failed: %w", err)
	}

	if err := c.buildControlPlane(); err != nil {
		return fmt.Errorf("build control plane failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.DefaultConfig()
	if c.cfg.Log.Level != "" {
		logCfg.Level = c.cfg.Log.Level
	}
	if c.cfg.Log.Console {
		logCfg.Format = "console"
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.sink = monitor.NewZapSink(c.logger.Logger)
	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewConsoleChannel("console")},
		time.Minute,
	)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildExecution() error {
	c.coordinator = healing.NewCoordinator(nil, c.cfg.Healing.Retry.ToRetry(), c.sink, c.logger.Logger)
	for name, bc := range c.cfg.Healing.Breakers {
		c.coordinator.RegisterBreaker(name, bc.ToBreaker())
	}

	breaker := c.coordinator.Breaker("orderPlacement")
	c.guard = exec.NewGuard(c.cfg.Guard, exec.NewPaperExchange(), breaker, c.sink, c.logger.Logger)
	c.coordinator.SetAdapter(c.guard)

	c.logger.Info("execution layer built")
	return nil
}

func (c *Container) buildControlPlane() error {
	var source telemetry.SampleSource
	if c.cfg.Telemetry.FeedURL != "" {
		c.feed = telemetry.NewWSFeed(c.cfg.Telemetry.FeedURL, c.logger.Logger)
		source = c.feed
	}
	c.collector = telemetry.NewCollector(source, c.guard)

	cpCfg := controlplane.Config{CycleInterval: c.cfg.Control.CycleInterval()}
	c.control = controlplane.New(cpCfg,
		truth.NewEvaluator(c.cfg.Thresholds),
		governance.New(),
		c.guard, c.collector, c.coordinator, c.sink, c.logger.Logger)
	c.control.SetAlerts(c.alerts)

	if c.cfg.Metrics.Addr != "" {
		c.ops = opsmon.New(opsmon.Config{Addr: c.cfg.Metrics.Addr}, c.control, c.logger.Logger)
	}

	var err error
	c.reloader, err = cfgreload.NewHotReloader(c.configPath, cfgreload.DefaultHotReloadConfig(), c.logger.Logger)
	if err != nil {
		return fmt.Errorf("create hot reloader failed: %w", err)
	}
	c.reloader.OnReload(func(cfg config.AppConfig) error {
		return c.control.ApplyThresholds(cfg.Thresholds)
	})

	c.logger.Info("control plane built")
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.feed != nil {
		c.lifecycle.Register(&component{
			name:  "telemetry_feed",
			start: func(context.Context) error { c.feed.Start(); return nil },
			stop:  func() error { c.feed.Stop(); return nil },
		})
	}

	c.lifecycle.Register(&component{
		name:   "execution_guard",
		start:  c.guard.Start,
		stop:   c.guard.Stop,
		health: c.guard.Health,
	})

	c.lifecycle.Register(&component{
		name:  "control_plane",
		start: c.control.Start,
		stop:  c.control.Stop,
		health: func() error {
			if report := c.control.Health(); !report.Healthy {
				return fmt.Errorf("control plane unhealthy")
			}
			return nil
		},
	})

	if c.ops != nil {
		c.lifecycle.Register(&component{
			name:  "ops_server",
			start: func(context.Context) error { return c.ops.Start() },
			stop:  c.ops.Stop,
		})
	}

	c.lifecycle.Register(&component{
		name:  "config_reloader",
		start: c.reloader.Start,
		stop:  c.reloader.Stop,
	})
}

// Start 启动所有组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止所有组件并关闭日志器
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if c.logger != nil {
		c.logger.Close()
	}

	return err
}

// HealthCheck 检查所有组件健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// ControlPlane 返回控制面（供命令行接口使用）
func (c *Container) ControlPlane() *controlplane.ControlPlane {
	return c.control
}

// Config 返回已加载配置
func (c *Container) Config() config.AppConfig {
	return *c.cfg
}
