package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"arm-pricer-go/infrastructure/monitor"
)

// metrics_probe 用模拟数据暴露 arm_pricer_* 指标，便于在没有链上环境时验证 Prometheus/Grafana。
func main() {
	addr := flag.String("metricsAddr", ":9100", "Prometheus 指标监听地址")
	arm := flag.String("arm", "probe", "arm 标签")
	mid := flag.Float64("mid", 0.9998, "模拟参考中间价")
	fee := flag.Float64("fee", 10, "模拟费率（bp）")
	apy := flag.Float64("apy", 0.035, "模拟借贷 APY")
	open := flag.Bool("breakerOpen", false, "是否模拟熔断")
	flag.Parse()

	mon := monitor.New(monitor.DefaultConfig())
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	state := 0
	if *open {
		state = 1
	}
	mon.SetBreakerState(*arm, state)

	// 周期性微调中间价，观察曲线变化
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		drift := 0.0
		for {
			publish(mon, *arm, *mid+drift, *fee, *apy)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				drift += 0.00001
			}
		}
	}()

	fmt.Printf("metrics_probe started at %s\n", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("metrics_probe: %v\n", err)
	}
}

func publish(mon *monitor.Monitor, arm string, mid, fee, apy float64) {
	f := fee / 10000
	buy := mid * (1 - f)
	sell := mid / (1 - f)
	mon.SetReference(arm, mid, mid, mid)
	mon.SetTargets(arm, buy, sell)
	mon.SetCurrent(arm, buy, sell)
	mon.SetDiffs(arm, 0, 0)
	mon.SetLending(arm, apy, 15)
	mon.RecordRun(arm, monitor.OutcomeUnchanged)
	mon.ObserveProvider("probe", 120*time.Millisecond, nil)
}
