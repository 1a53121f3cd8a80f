package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"arm-pricer-go/config"
	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/internal/container"
	"arm-pricer-go/monitor/logschema"
	"arm-pricer-go/reference"
	"arm-pricer-go/strategy"
)

// 打印 ARM 配置的所有参考价来源的报价，用于核对来源之间的偏差。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	armName := flag.String("arm", "", "ARM 名称")
	wrapped := flag.Bool("wrapped", false, "按包装资产兑换率换算（需要 wrapper）")
	targets := flag.Bool("targets", false, "同时打印每个来源在各策略下的目标价")
	timeout := flag.Duration("timeout", 30*time.Second, "总超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *armName == "" {
		log.Fatal("-arm is required")
	}
	lg, err := logger.New(logger.Config{Level: "warn", Outputs: []string{"stderr"}, Format: "console"})
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
	if len(arm.Providers) == 0 {
		log.Fatalf("arm %s has no swap sources configured", *armName)
	}

	var pair reference.Pair
	if pair.Liquidity, err = arm.Contract.LiquidityAsset(ctx); err != nil {
		log.Fatalf("liquidity asset: %v", err)
	}
	if pair.Base, err = arm.Contract.BaseAsset(ctx); err != nil {
		log.Fatalf("base asset: %v", err)
	}

	providers := arm.Providers
	if *wrapped {
		if arm.Rates == nil {
			log.Fatalf("arm %s has no wrapper configured", *armName)
		}
		for i, p := range providers {
			providers[i] = &reference.WrappedProvider{Provider: p, Rates: arm.Rates}
		}
	}

	results := reference.NewFallback(lg.Logger, providers...).FetchAll(ctx, pair, arm.Options.AmountWei())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tMID\tBUY\tSELL\tERROR")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%v\n", r.Provider, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", r.Provider, r.Quote.Mid, r.Quote.Buy, r.Quote.Sell)
		logger.Event(lg.Logger.With(zap.String("tool", "reference_prices")), logschema.EventReferenceQuote, map[string]interface{}{
			"arm":    *armName,
			"source": r.Provider,
			"mid":    r.Quote.Mid.String(),
			"buy":    r.Quote.Buy.String(),
			"sell":   r.Quote.Sell.String(),
		})
	}
	w.Flush()

	if *targets {
		printTargets(results, strategy.Params{Fee: arm.Options.Fee, Offset: arm.Options.Offset})
	}
}

// printTargets 同一组参考价分别走费率和偏移策略，便于比较两种定价。
func printTargets(results []reference.Result, params strategy.Params) {
	factory := strategy.NewStrategyFactory()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSOURCE\tSTRATEGY\tBUY\tSELL\tERROR")
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, kind := range []strategy.Kind{strategy.KindFee, strategy.KindOffset} {
			s, err := factory.CreateStrategy(string(kind))
			if err != nil {
				log.Fatal(err)
			}
			t, err := s.Targets(r.Quote, params)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t%v\n", r.Provider, kind, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", r.Provider, kind, t.Buy, t.Sell)
		}
	}
	w.Flush()
}
