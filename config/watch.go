package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"time"

	"go.uber.org/zap"
)

// Watcher 轮询配置文件内容，用于 fsnotify 不可用的文件系统（部分网络盘、容器挂载）。
// 按内容摘要判断变化：只改 mtime 不触发，被原子替换但 mtime 不变也能发现。
type Watcher struct {
	Path     string
	Interval time.Duration
	Logger   *zap.Logger

	// readFile 测试注入
	readFile func(string) ([]byte, error)
}

// Start 阻塞到 ctx 结束。只有校验通过的新配置才交给 onUpdate，
// 无效配置记日志后继续使用旧配置，文件修正后会再次加载。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	if w.Logger == nil {
		w.Logger = zap.NewNop()
	}
	if w.readFile == nil {
		w.readFile = os.ReadFile
	}

	var last []byte
	if raw, err := w.readFile(w.Path); err == nil {
		last = digest(raw)
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		raw, err := w.readFile(w.Path)
		if err != nil {
			w.Logger.Debug("config unreadable, keeping current", zap.String("path", w.Path), zap.Error(err))
			continue
		}
		sum := digest(raw)
		if bytes.Equal(sum, last) {
			continue
		}
		last = sum
		cfg, err := loadBytesWithEnv(raw)
		if err != nil {
			w.Logger.Warn("config reload rejected", zap.String("path", w.Path), zap.Error(err))
			continue
		}
		w.Logger.Info("config changed", zap.String("path", w.Path))
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}
}

func digest(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}
