package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"trade-governor-go/internal/container"
	"trade-governor-go/internal/truth"
)

func main() {
	cfgPath := flag.String("config", "configs/governor.yaml", "配置文件路径")
	mode := flag.String("mode", "", "启动后请求的运行模式（PAPER/LIVE_SMALL/...），留空保持 OFF")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化容器失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	if *mode != "" {
		requested := truth.Mode(*mode)
		res, err := c.ControlPlane().RequestMode(ctx, requested)
		if err != nil {
			log.Printf("模式请求失败: %v", err)
		} else if !res.Transition.Success {
			log.Printf("模式请求被拒: %s", res.Transition.Reason)
		}
	}

	// systemd 集成：就绪通知 + 看门狗心跳
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdogLoop(ctx, c, interval/2)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Printf("收到信号 %v，开始停机", sig)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停机出错: %v", err)
		os.Exit(1)
	}
}

// watchdogLoop 组件全部健康才喂狗，让 systemd 在僵死时重启进程。
func watchdogLoop(ctx context.Context, c *container.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				log.Printf("健康检查失败，跳过看门狗心跳: %v", err)
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
