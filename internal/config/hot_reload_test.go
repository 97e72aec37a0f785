package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	rootcfg "trade-governor-go/config"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestReloader(t *testing.T, path string) *HotReloader {
	t.Helper()
	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = 0
	h, err := NewHotReloader(path, cfg, nil)
	if err != nil {
		t.Fatalf("create reloader: %v", err)
	}
	return h
}

func TestHotReloader_AppliesNewThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	writeConfig(t, path, "env: dev\n")

	h := newTestReloader(t, path)

	var mu sync.Mutex
	var got []float64
	h.OnReload(func(cfg rootcfg.AppConfig) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cfg.Thresholds.RealityGapHalt)
		return nil
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = h.Stop() }()

	writeConfig(t, path, "env: dev\nthresholds:\n  realityGapHalt: 0.7\n")

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		var last float64
		if n > 0 {
			last = got[n-1]
		}
		mu.Unlock()
		if n > 0 && last == 0.7 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("applier never saw the new threshold, got %v", got)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHotReloader_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	writeConfig(t, path, "env: dev\n")

	h := newTestReloader(t, path)

	applied := make(chan struct{}, 8)
	h.OnReload(func(rootcfg.AppConfig) error {
		applied <- struct{}{}
		return nil
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = h.Stop() }()

	// 越界阈值必须被拒绝，Applier 不应被调用
	writeConfig(t, path, "env: dev\nthresholds:\n  realityGapHalt: 7\n")

	select {
	case <-applied:
		t.Fatal("invalid config must not reach appliers")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestHotReloader_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	writeConfig(t, path, "env: dev\n")

	cfg := HotReloadConfig{Enabled: false}
	h, err := NewHotReloader(path, cfg, nil)
	if err != nil {
		t.Fatalf("create reloader: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("disabled start must succeed: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("disabled stop must succeed: %v", err)
	}
}

func TestHotReloader_CooldownSuppressesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governor.yaml")
	writeConfig(t, path, "env: dev\n")

	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = time.Hour
	h, err := NewHotReloader(path, cfg, nil)
	if err != nil {
		t.Fatalf("create reloader: %v", err)
	}

	count := 0
	var mu sync.Mutex
	h.OnReload(func(rootcfg.AppConfig) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = h.Stop() }()

	for i := 0; i < 5; i++ {
		writeConfig(t, path, "env: dev\n")
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count > 1 {
		t.Errorf("cooldown must collapse bursts, got %d reloads", count)
	}
}
