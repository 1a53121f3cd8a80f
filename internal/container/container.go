package container

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arm-pricer-go/chain"
	"arm-pricer-go/config"
	"arm-pricer-go/engine"
	"arm-pricer-go/gateway"
	"arm-pricer-go/infrastructure/alert"
	"arm-pricer-go/infrastructure/logger"
	"arm-pricer-go/infrastructure/monitor"
	"arm-pricer-go/lending"
	"arm-pricer-go/reference"
	"arm-pricer-go/withdrawal"
)

// Backend 链上读写所需的 RPC 能力，由 ethclient.Client 实现。
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// ARM 单个 ARM 组装好的组件。
type ARM struct {
	Name       string
	Contract   *chain.ARM
	Engine     *engine.Engine
	Options    engine.PricingOptions
	Providers  []reference.Provider
	Rates      reference.ExchangeRateSource
	Withdrawal *withdrawal.Source
	Market     *lending.Market
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	backend Backend
	signer  *bind.TransactOpts

	// 聚合器客户端在所有 ARM 之间共享，保证同一 API 的请求间隔
	oneInch  *gateway.OneInchClient
	kyber    *gateway.KyberClient
	flyTrade *gateway.FlyTradeClient
	silo     *gateway.SiloClient
	morpho   *gateway.MorphoClient

	arms map[string]*ARM

	metrics *metricsServer

	// 生命周期管理
	lifecycle *LifecycleManager
}

// Option 构建选项。
type Option func(*Container)

// WithBackend 使用给定的 RPC 后端，不再拨号。
func WithBackend(b Backend) Option {
	return func(c *Container) { c.backend = b }
}

// WithMonitor 替换默认的指标注册表。
func WithMonitor(m *monitor.Monitor) Option {
	return func(c *Container) { c.monitor = m }
}

// New 创建新的Container实例
func New(cfg config.AppConfig, log *logger.Logger, opts ...Option) *Container {
	if log == nil {
		log = logger.Wrap(zap.NewNop())
	}
	c := &Container{
		cfg:       cfg,
		logger:    log,
		arms:      make(map[string]*ARM),
		lifecycle: NewLifecycleManager(log.Logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build 构建所有组件；names 为空时构建全部 ARM。
func (c *Container) Build(ctx context.Context, names ...string) error {
	c.buildInfrastructure()

	if err := c.buildBackend(ctx); err != nil {
		return fmt.Errorf("build backend failed: %w", err)
	}

	if len(names) == 0 {
		for name := range c.cfg.ARMs {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		if err := c.buildARM(ctx, name); err != nil {
			return fmt.Errorf("build arm %s failed: %w", name, err)
		}
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.Strings("arms", names), zap.Bool("signer", c.signer != nil))
	return nil
}

func (c *Container) buildInfrastructure() {
	if c.monitor == nil {
		c.monitor = monitor.New(monitor.DefaultConfig())
	}
	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Logger)}
	if c.cfg.Alert.Console {
		channels = append(channels, alert.NewConsoleChannel("console"))
	}
	throttle := 5 * time.Minute
	if c.cfg.Alert.ThrottleSeconds > 0 {
		throttle = time.Duration(c.cfg.Alert.ThrottleSeconds) * time.Second
	}
	c.alerts = alert.NewManager(channels, throttle)
}

func (c *Container) buildBackend(ctx context.Context) error {
	if c.backend == nil {
		client, err := ethclient.DialContext(ctx, c.cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("dial %s: %w", c.cfg.Chain.RPCURL, err)
		}
		c.backend = client
	}
	if c.cfg.PrivateKey == "" {
		return nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	chainID := big.NewInt(c.cfg.Chain.ChainID)
	if chainID.Sign() == 0 {
		if chainID, err = c.backend.ChainID(ctx); err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
	}
	c.signer, err = bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return fmt.Errorf("transactor: %w", err)
	}
	return nil
}

func (c *Container) httpConfig(p config.HTTPProvider) gateway.HTTPConfig {
	return gateway.HTTPConfig{
		BaseURL:     p.BaseURL,
		Timeout:     time.Duration(p.TimeoutMs) * time.Millisecond,
		MinInterval: time.Duration(p.MinIntervalMs) * time.Millisecond,
		Logger:      c.logger.Logger,
		Observer:    c.monitor.ObserveProvider,
	}
}

func (c *Container) quoter(name string, a config.ARMConfig) (reference.SwapQuoter, error) {
	p := c.cfg.Providers
	switch name {
	case config.SourceCurve:
		coins := make(map[common.Address]int64, len(a.Curve.Coins))
		for addr, idx := range a.Curve.Coins {
			coins[common.HexToAddress(addr)] = idx
		}
		return chain.NewCurvePool(common.HexToAddress(a.Curve.Pool), c.backend, coins), nil
	case config.SourceInch:
		if c.oneInch == nil {
			client, err := gateway.NewOneInchClient(gateway.OneInchConfig{
				HTTPConfig: c.httpConfig(p.OneInch.HTTPProvider),
				APIKey:     p.OneInch.APIKey,
				ChainID:    c.cfg.Chain.ChainID,
			})
			if err != nil {
				return nil, err
			}
			c.oneInch = client
		}
		return c.oneInch, nil
	case config.SourceKyber:
		if c.kyber == nil {
			c.kyber = gateway.NewKyberClient(gateway.KyberConfig{
				HTTPConfig:      c.httpConfig(p.Kyber.HTTPProvider),
				Chain:           p.Kyber.Chain,
				ClientID:        p.Kyber.ClientID,
				ExcludedSources: p.Kyber.ExcludedSources,
			})
		}
		return c.kyber, nil
	case config.SourceFly:
		if c.flyTrade == nil {
			var swapper common.Address
			if p.FlyTrade.Swapper != "" {
				swapper = common.HexToAddress(p.FlyTrade.Swapper)
			}
			c.flyTrade = gateway.NewFlyTradeClient(gateway.FlyTradeConfig{
				HTTPConfig:       c.httpConfig(p.FlyTrade.HTTPProvider),
				Network:          p.FlyTrade.Network,
				Swapper:          swapper,
				Slippage:         p.FlyTrade.Slippage,
				LiquiditySources: p.FlyTrade.LiquiditySources,
			})
		}
		return c.flyTrade, nil
	}
	return nil, fmt.Errorf("unknown source %q", name)
}

func (c *Container) providers(a config.ARMConfig) ([]reference.Provider, error) {
	var out []reference.Provider
	for _, src := range a.Sources() {
		if src == config.SourceMid {
			continue
		}
		q, err := c.quoter(src, a)
		if err != nil {
			return nil, err
		}
		fee, err := sourceFee(a, src)
		if err != nil {
			return nil, err
		}
		out = append(out, reference.NewSwapProvider(q, fee))
	}
	return out, nil
}

func sourceFee(a config.ARMConfig, src string) (decimal.Decimal, error) {
	raw, ok := a.FeeBps[src]
	if !ok {
		return decimal.Zero, nil
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("feeBps.%s: %w", src, err)
	}
	return fee, nil
}

// marketPrices lending.priceSource 配置的借贷市场价来源。
func (c *Container) marketPrices(a config.ARMConfig, contract *chain.ARM) (lending.MidPriceSource, error) {
	src := a.Lending.PriceSource
	q, err := c.quoter(src, a)
	if err != nil {
		return nil, err
	}
	fee, err := sourceFee(a, src)
	if err != nil {
		return nil, err
	}
	amount, err := a.Lending.MarketPriceAmount()
	if err != nil {
		return nil, err
	}
	return &lending.QuoteMidPrice{
		Provider: reference.NewSwapProvider(q, fee),
		Assets:   contract,
		Amount:   amount,
	}, nil
}

func (c *Container) rateSource(provider string) lending.RateSource {
	p := c.cfg.Providers
	switch provider {
	case config.LendingSilo:
		if c.silo == nil {
			c.silo = gateway.NewSiloClient(gateway.SiloConfig{
				HTTPConfig: c.httpConfig(p.Silo.HTTPProvider),
				Network:    p.Silo.Network,
			})
		}
		return c.silo
	case config.LendingMorpho:
		if c.morpho == nil {
			c.morpho = gateway.NewMorphoClient(gateway.MorphoConfig{
				HTTPConfig: c.httpConfig(p.Morpho.HTTPProvider),
				ChainID:    c.cfg.Chain.ChainID,
			})
		}
		return c.morpho
	}
	return nil
}

func (c *Container) withdrawalSource(ctx context.Context, arm *chain.ARM, a config.ARMConfig, log *zap.Logger) (*withdrawal.Source, error) {
	liquidityToken, err := arm.LiquidityAsset(ctx)
	if err != nil {
		return nil, fmt.Errorf("liquidity asset: %w", err)
	}
	baseToken, err := arm.BaseAsset(ctx)
	if err != nil {
		return nil, fmt.Errorf("base asset: %w", err)
	}
	p := c.cfg.Providers.Squid
	squid := gateway.NewSquidClient(gateway.SquidConfig{
		HTTPConfig:   c.httpConfig(p.HTTPProvider),
		ChainID:      c.cfg.Chain.ChainID,
		ValidatorIDs: a.Withdrawal.ValidatorIDs,
		Limit:        p.Limit,
	})
	liquidity := chain.NewVaultLiquidity(arm, common.HexToAddress(a.Vault), liquidityToken, baseToken, c.backend)
	src := withdrawal.NewSource(squid, liquidity)
	src.Logger = log
	if a.Withdrawal.MaturationDays > 0 {
		src.Estimator.Maturation = time.Duration(a.Withdrawal.MaturationDays) * 24 * time.Hour
	}
	return src, nil
}

func (c *Container) buildARM(ctx context.Context, name string) error {
	a, err := c.cfg.ARM(name)
	if err != nil {
		return err
	}
	opts, err := a.PricingOptions()
	if err != nil {
		return err
	}
	log := c.logger.WithFields(map[string]interface{}{"arm": name}).Logger

	contract := chain.NewARM(common.HexToAddress(a.Address), c.backend)
	components := engine.Components{
		Contract: contract,
		Logger:   log,
		Metrics:  c.monitor,
		Alerts:   c.alerts,
	}
	if c.signer != nil {
		contract.WithSigner(c.backend, c.signer)
		components.Submitter = contract
		components.Waiter = func(ctx context.Context, tx *types.Transaction) error {
			_, err := chain.WaitMined(ctx, c.backend, tx, log)
			return err
		}
	}

	providers, err := c.providers(a)
	if err != nil {
		return err
	}
	switch len(providers) {
	case 0:
	case 1:
		components.Reference = providers[0]
	default:
		components.Reference = reference.NewFallback(log, providers...)
	}
	built := &ARM{Name: name, Contract: contract, Options: opts, Providers: providers}
	if a.Wrapper != "" {
		rates := chain.NewERC4626(common.HexToAddress(a.Wrapper), c.backend)
		components.Rates = rates
		built.Rates = rates
	}
	var holding lending.HoldingPeriodSource
	if a.Withdrawal.Enabled {
		src, err := c.withdrawalSource(ctx, contract, a, log)
		if err != nil {
			return err
		}
		built.Withdrawal = src
		holding = src
	}
	if rates := c.rateSource(a.Lending.Provider); rates != nil {
		market := &lending.Market{
			Locator: contract,
			Underlying: func(ctx context.Context, wrapper common.Address) (common.Address, error) {
				return chain.NewMarketWrapper(wrapper, c.backend).Market(ctx)
			},
			Rates: rates,
		}
		if a.Lending.Market != "" {
			market.Override = common.HexToAddress(a.Lending.Market)
		}
		if a.Lending.PriceSource != "" {
			if market.Prices, err = c.marketPrices(a, contract); err != nil {
				return err
			}
		}
		built.Market = market
		components.Lending = lending.NewCalculator(market, holding, lending.DefaultConfig(), log)
	}

	built.Engine, err = engine.New(name, components)
	if err != nil {
		return err
	}
	c.arms[name] = built
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.monitor != nil && c.cfg.Metrics.Addr != "" {
		c.metrics = &metricsServer{
			addr:    c.cfg.Metrics.Addr,
			metrics: c.monitor.Handler(),
			health:  c.HealthCheck,
			logger:  c.logger.Logger,
		}
		c.lifecycle.Register("metrics_server", c.metrics)
	}
}

// ARM 取已构建的 ARM。
func (c *Container) ARM(name string) (*ARM, error) {
	a, ok := c.arms[name]
	if !ok {
		return nil, fmt.Errorf("arm %q not built", name)
	}
	return a, nil
}

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func (c *Container) Alerts() *alert.Manager { return c.alerts }

func (c *Container) Config() config.AppConfig { return c.cfg }

// Backend 返回 RPC 后端，供按区块触发使用。
func (c *Container) Backend() Backend { return c.backend }

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	var errs []error
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
		errs = append(errs, err)
	}
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := c.logger.Close(); err != nil && !isSyncNoise(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// isSyncNoise stdout 不支持 fsync 时 zap 的 Sync 会报错，忽略。
func isSyncNoise(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// Register 注册额外的生命周期组件，在 Start 时按注册顺序启动。
func (c *Container) Register(name string, component Lifecycle) {
	c.lifecycle.Register(name, component)
}

// MetricsAddr /metrics 实际监听地址，未启动时为空。
func (c *Container) MetricsAddr() string {
	if c.metrics == nil {
		return ""
	}
	return c.metrics.Addr()
}
