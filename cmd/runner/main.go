package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"arm-pricer-go/config"
	"arm-pricer-go/gateway"
	"arm-pricer-go/infrastructure/alert"
	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/infrastructure/monitor"
	internalcfg "arm-pricer-go/internal/config"
	"arm-pricer-go/internal/container"
	"arm-pricer-go/internal/risk"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	armName := flag.String("arm", "", "ARM 名称（配置 arms 下的键）")
	dryRun := flag.Bool("dryRun", false, "只计算和记录，不提交价格")
	interval := flag.Duration("interval", 0, "循环模式的运行间隔，0 表示只运行一次")
	blocks := flag.Int("blocks", 0, "每 N 个新区块运行一次（需要 chain.wsURL），0 表示关闭")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置")
	flag.Parse()

	if err := run(*cfgPath, *armName, *dryRun, *interval, *blocks, *metricsAddr); err != nil {
		log.Fatalf("runner: %v", err)
	}
}

func run(cfgPath, armName string, dryRun bool, interval time.Duration, blocks int, metricsAddr string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if armName == "" {
		if len(cfg.ARMs) != 1 {
			return errors.New("-arm is required when more than one arm is configured")
		}
		for name := range cfg.ARMs {
			armName = name
		}
	}
	loop := interval > 0 || blocks > 0
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if !loop {
		// 单次运行不需要 /metrics
		cfg.Metrics.Addr = ""
	}

	lg, err := logger.New(logConfig(cfg.Log))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	zl := lg.Logger.With(zap.String("arm", armName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := container.New(cfg, lg)
	if err := c.Build(ctx, armName); err != nil {
		return err
	}
	defer c.Stop()
	arm, err := c.ARM(armName)
	if err != nil {
		return err
	}

	r := &runner{engine: arm.Engine, logger: zl, forceDryRun: dryRun, opts: arm.Options}
	if !loop {
		return r.runOnce(ctx)
	}

	r.afterRun = watchdogPing(zl)
	r.breaker = newBreaker(cfg.Breaker, c.Alerts(), c.Monitor(), armName, zl)
	registerHotReload(ctx, c, cfgPath, armName, r, zl)
	if err := c.Start(ctx); err != nil {
		return err
	}

	var triggers <-chan struct{}
	if blocks > 0 {
		if cfg.Chain.WSURL == "" {
			return errors.New("-blocks needs chain.wsURL")
		}
		sub, err := gateway.NewHeadSubscriber(gateway.HeadSubscriberConfig{URL: cfg.Chain.WSURL, Logger: zl})
		if err != nil {
			return err
		}
		heads := make(chan gateway.Head, 16)
		go func() {
			if err := sub.Run(ctx, heads); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("head subscriber stopped", zap.Error(err))
			}
		}()
		triggers = headTriggers(ctx, heads, blocks, zl)
	} else {
		triggers = tickerTriggers(ctx, interval)
	}

	notify(zl, daemon.SdNotifyReady)
	zl.Info("runner started", zap.Duration("interval", interval), zap.Int("blocks", blocks), zap.Bool("dryRun", dryRun))
	err = r.loop(ctx, triggers)
	notify(zl, daemon.SdNotifyStopping)
	if errors.Is(err, context.Canceled) {
		zl.Info("runner stopped")
		return nil
	}
	return err
}

func logConfig(l config.LogConfig) logger.Config {
	out := logger.DefaultConfig()
	if l.Level != "" {
		out.Level = l.Level
	}
	if l.Format != "" {
		out.Format = l.Format
	}
	if len(l.Outputs) > 0 {
		out.Outputs = l.Outputs
	}
	out.OutputFile = l.OutputFile
	out.ErrorFile = l.ErrorFile
	return out
}

// registerHotReload fsnotify 不可用时退回轮询。
func registerHotReload(ctx context.Context, c *container.Container, path, armName string, r *runner, zl *zap.Logger) {
	apply := func(cfg config.AppConfig) error {
		a, err := cfg.ARM(armName)
		if err != nil {
			return err
		}
		opts, err := a.PricingOptions()
		if err != nil {
			return err
		}
		r.setOptions(opts)
		// 新配置可能已修复失败原因
		if r.breaker != nil {
			r.breaker.Reset()
		}
		if alerts := c.Alerts(); alerts != nil {
			alerts.ResetThrottle()
		}
		return nil
	}

	current, err := c.Config().ARM(armName)
	if err != nil {
		zl.Warn("hot reload disabled", zap.Error(err))
		return
	}
	validators := map[string]internalcfg.Validator{
		"chain":  internalcfg.SameChain(c.Config().Chain),
		"wiring": internalcfg.SameWiring(armName, current),
	}

	reloader, err := internalcfg.NewHotReloader(path, internalcfg.DefaultHotReloadConfig(), zl)
	if err != nil {
		zl.Warn("fsnotify unavailable, polling config", zap.Error(err))
		w := config.Watcher{Path: path, Logger: zl}
		go w.Start(ctx, func(cfg config.AppConfig) {
			for _, v := range validators {
				if err := v.Validate(cfg); err != nil {
					zl.Warn("config reload rejected", zap.Error(err))
					return
				}
			}
			if err := apply(cfg); err != nil {
				zl.Warn("config reload rejected", zap.Error(err))
			}
		})
		return
	}
	for name, v := range validators {
		reloader.RegisterValidator(name, v)
	}
	reloader.SetReloadHandler(apply)
	c.Register("config_reload", container.Hook{OnStart: reloader.Start, OnStop: reloader.Stop})
}

// newBreaker 熔断状态变化时发告警。
func newBreaker(cfg config.BreakerConfig, alerts *alert.Manager, mon *monitor.Monitor, armName string, zl *zap.Logger) *risk.CircuitBreaker {
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		Threshold: cfg.Threshold,
		Cooldown:  cooldown,
		OnStateChange: func(from, to risk.State, fails int) {
			zl.Warn("circuit breaker state changed",
				zap.Stringer("from", from), zap.Stringer("to", to), zap.Int("consecutiveFailures", fails))
			if mon != nil {
				mon.SetBreakerState(armName, int(to))
			}
			switch {
			case to == risk.StateOpen && alerts != nil:
				_ = alerts.RunsSuspended(armName, fails, cooldown)
			case to == risk.StateClosed && alerts != nil:
				_ = alerts.RunsResumed(armName)
			}
		},
	})
}

func notify(zl *zap.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		zl.Debug("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}

// watchdogPing 启用了 systemd watchdog 时每次运行后上报。
// 运行间隔必须小于 WatchdogSec。
func watchdogPing(zl *zap.Logger) func() {
	period, err := daemon.SdWatchdogEnabled(false)
	if err != nil || period == 0 {
		return nil
	}
	zl.Info("systemd watchdog enabled", zap.Duration("period", period))
	return func() { notify(zl, daemon.SdNotifyWatchdog) }
}
