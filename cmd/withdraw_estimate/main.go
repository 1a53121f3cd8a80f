package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"arm-pricer-go/config"
	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/internal/container"
)

// 打印提款队列估算的持有期，借贷边界使用同一个估算。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	armName := flag.String("arm", "", "ARM 名称")
	timeout := flag.Duration("timeout", 30*time.Second, "总超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *armName == "" {
		log.Fatal("-arm is required")
	}
	// 工具总是估算，不要求配置里打开
	a, err := cfg.ARM(*armName)
	if err != nil {
		log.Fatal(err)
	}
	a.Withdrawal.Enabled = true
	cfg.ARMs[*armName] = a
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: "info", Outputs: []string{"stderr"}, Format: "json"})
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := container.New(cfg, lg)
	if err := c.Build(ctx, *armName); err != nil {
		log.Fatalf("build: %v", err)
	}
	defer c.Stop()
	arm, err := c.ARM(*armName)
	if err != nil {
		log.Fatal(err)
	}

	est, err := arm.Withdrawal.Estimate(ctx)
	if err != nil {
		log.Fatalf("estimate: %v", err)
	}
	fmt.Printf("needed %s, covered %s, shortfall %s by %d requests\n", est.Needed, est.Covered, est.Shortfall, est.Used)
	fmt.Printf("holding period: %.2f days (%s)\n", est.Days(), est.Period.Round(time.Minute))
}
