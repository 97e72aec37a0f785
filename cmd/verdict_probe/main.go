package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"trade-governor-go/config"
	"trade-governor-go/internal/truth"
)

// verdict_probe 读取一份系统状态快照（JSON），离线输出裁决。
// 用于排障回放：拿生产日志里的快照重跑求值器，验证裁决是否可复现。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径，留空用默认阈值")
	statePath := flag.String("state", "-", "快照 JSON 文件路径，- 表示读标准输入")
	flag.Parse()

	limits := truth.DefaultThresholds()
	if *cfgPath != "" {
		cfg, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		limits = cfg.Thresholds
	}

	var raw []byte
	var err error
	if *statePath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*statePath)
	}
	if err != nil {
		log.Fatalf("读取快照失败: %v", err)
	}

	var state truth.SystemState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Fatalf("解析快照失败: %v", err)
	}

	verdict := truth.NewEvaluator(limits).Evaluate(state)
	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		log.Fatalf("序列化裁决失败: %v", err)
	}
	fmt.Println(string(out))

	if verdict.Halted() {
		os.Exit(2)
	}
}
