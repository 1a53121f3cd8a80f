package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string               `yaml:"env"`
	Chain     ChainConfig          `yaml:"chain"`
	Log       LogConfig            `yaml:"log"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Alert     AlertConfig          `yaml:"alert"`
	Breaker   BreakerConfig        `yaml:"breaker"`
	Providers ProvidersConfig      `yaml:"providers"`
	ARMs      map[string]ARMConfig `yaml:"arms"`

	// PrivateKey 只从环境变量 ARM_PRIVATE_KEY 读取，不出现在 yaml 中。
	PrivateKey string `yaml:"-"`
}

type ChainConfig struct {
	RPCURL  string `yaml:"rpcURL"`
	WSURL   string `yaml:"wsURL"`
	ChainID int64  `yaml:"chainID"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`  // json 或 console
	Outputs    []string `yaml:"outputs"` // stdout / file
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空时不启动 /metrics
}

type AlertConfig struct {
	ThrottleSeconds int  `yaml:"throttleSeconds"`
	Console         bool `yaml:"console"`
}

// BreakerConfig 循环模式下连续失败的熔断，0 使用默认值。
type BreakerConfig struct {
	Threshold       int `yaml:"threshold"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

// HTTPProvider 各 HTTP 来源共用的字段。
type HTTPProvider struct {
	BaseURL       string `yaml:"baseURL"`
	TimeoutMs     int    `yaml:"timeoutMs"`
	MinIntervalMs int    `yaml:"minIntervalMs"` // 同一 API 两次请求的最小间隔
}

type ProvidersConfig struct {
	OneInch  OneInchProvider  `yaml:"oneinch"`
	Kyber    KyberProvider    `yaml:"kyber"`
	FlyTrade FlyTradeProvider `yaml:"flytrade"`
	Silo     SiloProvider     `yaml:"silo"`
	Morpho   MorphoProvider   `yaml:"morpho"`
	Squid    SquidProvider    `yaml:"squid"`
}

type OneInchProvider struct {
	HTTPProvider `yaml:",inline"`
	APIKey       string `yaml:"apiKey"`
}

type KyberProvider struct {
	HTTPProvider    `yaml:",inline"`
	Chain           string   `yaml:"chain"`
	ClientID        string   `yaml:"clientID"`
	ExcludedSources []string `yaml:"excludedSources"`
}

type FlyTradeProvider struct {
	HTTPProvider     `yaml:",inline"`
	Network          string   `yaml:"network"`
	Swapper          string   `yaml:"swapper"`
	Slippage         string   `yaml:"slippage"`
	LiquiditySources []string `yaml:"liquiditySources"`
}

type SiloProvider struct {
	HTTPProvider `yaml:",inline"`
	Network      string `yaml:"network"`
}

type MorphoProvider struct {
	HTTPProvider `yaml:",inline"`
}

type SquidProvider struct {
	HTTPProvider `yaml:",inline"`
	Limit        int `yaml:"limit"`
}

// ARMConfig 单个 ARM 的地址、参考价来源和定价参数。
type ARMConfig struct {
	Address string `yaml:"address"`
	// Wrapper 包装资产（ERC-4626）地址，pricing.wrapped 时用于换算
	Wrapper string      `yaml:"wrapper"`
	Vault   string      `yaml:"vault"`
	Curve   CurveConfig `yaml:"curve"`

	// Source mid|curve|inch|kyber|fly；Fallback 为按优先级排列的备用来源
	Source   string   `yaml:"source"`
	Fallback []string `yaml:"fallback"`
	// FeeBps 来源自身的基础设施费用（基点），按来源名配置
	FeeBps map[string]string `yaml:"feeBps"`

	Pricing    PricingConfig    `yaml:"pricing"`
	Lending    LendingConfig    `yaml:"lending"`
	Withdrawal WithdrawalConfig `yaml:"withdrawal"`
}

type CurveConfig struct {
	Pool string `yaml:"pool"`
	// Coins 代币地址到池子下标
	Coins map[string]int64 `yaml:"coins"`
}

// PricingConfig 价格类参数用字符串保存，避免 yaml 浮点解析损失精度。
type PricingConfig struct {
	Fee          string `yaml:"fee"`
	Tolerance    string `yaml:"tolerance"`
	Offset       string `yaml:"offset"`
	BuyPrice     string `yaml:"buyPrice"`
	SellPrice    string `yaml:"sellPrice"`
	MidPrice     string `yaml:"midPrice"`
	MinSellPrice string `yaml:"minSellPrice"`
	MaxSellPrice string `yaml:"maxSellPrice"`
	MinBuyPrice  string `yaml:"minBuyPrice"`
	MaxBuyPrice  string `yaml:"maxBuyPrice"`
	Amount       string `yaml:"amount"`
	PriceOffset  bool   `yaml:"priceOffset"`
	Wrapped      bool   `yaml:"wrapped"`
	DryRun       bool   `yaml:"dryRun"`
	Confirm      bool   `yaml:"confirm"`
}

type LendingConfig struct {
	// Provider silo|morpho，为空时不计算借贷边界
	Provider string `yaml:"provider"`
	// Market 非空时固定使用该市场，不查询 ARM 的 activeMarket
	Market        string  `yaml:"market"`
	HoldingDays   float64 `yaml:"holdingDays"`
	MinBuyFloor   string  `yaml:"minBuyFloor"`
	MaxBuyPremium string  `yaml:"maxBuyPremium"`
	// PriceSource 最高买价使用的市场价来源（curve|inch|kyber|fly），为空时用参考中间价
	PriceSource string `yaml:"priceSource"`
	// PriceAmount 市场价报价数量（基础资产整数单位），默认 1000
	PriceAmount string `yaml:"priceAmount"`
}

type WithdrawalConfig struct {
	// Enabled 用提款队列估算持有期
	Enabled        bool     `yaml:"enabled"`
	ValidatorIDs   []string `yaml:"validatorIDs"`
	MaturationDays int      `yaml:"maturationDays"`
}

// Parse 只解析 YAML，不校验。
func Parse(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadWithEnvOverrides 环境变量覆盖敏感字段后再校验，rpcURL 可以只由 ARM_RPC_URL 提供。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return loadBytesWithEnv(raw)
}

func loadBytesWithEnv(raw []byte) (AppConfig, error) {
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("ARM_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("ARM_WS_URL"); v != "" {
		cfg.Chain.WSURL = v
	}
	if v := os.Getenv("ARM_ONEINCH_API_KEY"); v != "" {
		cfg.Providers.OneInch.APIKey = v
	}
	cfg.PrivateKey = os.Getenv("ARM_PRIVATE_KEY")
}

// ARM 按名称取 ARM 配置。
func (c AppConfig) ARM(name string) (ARMConfig, error) {
	arm, ok := c.ARMs[name]
	if !ok {
		return ARMConfig{}, ErrInvalid(fmt.Sprintf("arm %q not configured", name))
	}
	return arm, nil
}

// Sources 主来源加备用来源，去重后保持顺序。
func (a ARMConfig) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append([]string{a.Source}, a.Fallback...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
