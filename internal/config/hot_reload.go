package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appconfig "arm-pricer-go/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled bool
	// Debounce 最后一个文件事件之后等待的时间。编辑器保存一次通常产生多个事件，
	// 只加载最终内容。
	Debounce time.Duration
}

func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{Enabled: true, Debounce: 500 * time.Millisecond}
}

// Validator 新配置生效前的检查，例如不允许运行中切换 RPC。
type Validator interface {
	Validate(cfg appconfig.AppConfig) error
}

// ValidatorFunc 函数形式的 Validator。
type ValidatorFunc func(cfg appconfig.AppConfig) error

func (f ValidatorFunc) Validate(cfg appconfig.AppConfig) error { return f(cfg) }

// HotReloader 监听配置文件，把通过校验的新配置交给 handler。
// 任何一步失败都保留当前配置；内容没变的事件（touch、chmod）被忽略。
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	load       func(path string) (appconfig.AppConfig, error)

	mu         sync.Mutex
	validators map[string]Validator
	handler    func(cfg appconfig.AppConfig) error
	applied    []byte // 已生效内容的摘要
	lastReload time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewHotReloader(configPath string, cfg HotReloadConfig, logger *zap.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		logger:     logger.With(zap.String("component", "hot-reload")),
		load:       appconfig.LoadWithEnvOverrides,
		validators: make(map[string]Validator),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	// 启动时的内容视为已生效
	if sum, err := fileDigest(h.configPath); err == nil {
		h.applied = sum
	}
	return h, nil
}

func (h *HotReloader) RegisterValidator(name string, validator Validator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validators[name] = validator
}

func (h *HotReloader) SetReloadHandler(handler func(cfg appconfig.AppConfig) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Start 监听配置所在目录：编辑器和 ConfigMap 通常以 rename 方式替换文件。
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.started.Store(true)
	go h.watch(ctx)
	return nil
}

func (h *HotReloader) Stop() error {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.started.Load() {
		<-h.done
	}
	return h.watcher.Close()
}

func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.done)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(h.config.Debounce)
			}
		case <-debounce.C:
			h.handleConfigChange()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange 加载、校验并交给 handler，返回新配置是否生效。
func (h *HotReloader) handleConfigChange() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sum, err := fileDigest(h.configPath)
	if err != nil {
		// rename 替换过程中文件可能暂时不存在，等下一个事件
		h.logger.Debug("config not readable yet", zap.Error(err))
		return false
	}
	if bytes.Equal(sum, h.applied) {
		return false
	}

	cfg, err := h.load(h.configPath)
	if err != nil {
		h.logger.Warn("config reload rejected", zap.Error(err))
		return false
	}
	names := make([]string, 0, len(h.validators))
	for name := range h.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.validators[name].Validate(cfg); err != nil {
			h.logger.Warn("config reload rejected", zap.String("validator", name), zap.Error(err))
			return false
		}
	}
	if h.handler != nil {
		if err := h.handler(cfg); err != nil {
			h.logger.Error("failed to apply config", zap.Error(err))
			return false
		}
	}

	h.applied = sum
	h.lastReload = time.Now()
	h.logger.Info("config reloaded", zap.String("path", h.configPath), zap.Int("arms", len(cfg.ARMs)))
	return true
}

func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReload
}

func fileDigest(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// SameChain 拒绝切换链或 RPC 的配置，这类变化需要重启。
func SameChain(current appconfig.ChainConfig) Validator {
	return ValidatorFunc(func(cfg appconfig.AppConfig) error {
		if cfg.Chain != current {
			return fmt.Errorf("chain config changed (%s -> %s), restart required", current.RPCURL, cfg.Chain.RPCURL)
		}
		return nil
	})
}

// SameWiring 只允许热更新定价参数。地址、报价来源、基础设施费率和提款配置
// 在启动时已经装配进 provider 和合约绑定，改动需要重启。
func SameWiring(name string, current appconfig.ARMConfig) Validator {
	return ValidatorFunc(func(cfg appconfig.AppConfig) error {
		next, err := cfg.ARM(name)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(wiring(current), wiring(next)) {
			return fmt.Errorf("arm %s wiring changed, restart required", name)
		}
		return nil
	})
}

// wiring 去掉可热更新的字段。
func wiring(a appconfig.ARMConfig) appconfig.ARMConfig {
	a.Pricing = appconfig.PricingConfig{}
	a.Lending.HoldingDays = 0
	a.Lending.MinBuyFloor = ""
	a.Lending.MaxBuyPremium = ""
	return a
}
