package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"perparb/internal/domain/model"
)

type ExchangeConfig struct {
	Enabled         bool    `toml:"enabled"`
	WsURL           string  `toml:"ws_url"`
	RestURL         string  `toml:"rest_url"`
	APIKeyEnv       string  `toml:"api_key_env"`    // API key 所在环境变量名，不直接进配置文件
	APISecretEnv    string  `toml:"api_secret_env"` // API secret 所在环境变量名
	Paper           bool    `toml:"paper"`          // 纸面模式：不接真实账户
	PaperBalanceUSD float64 `toml:"paper_balance_usd"`
}

type Config struct {
	App struct {
		PrintEveryMin  int `toml:"print_every_min"`
		CycleEverySec  int `toml:"cycle_every_sec"`
		PaymentSyncMin int `toml:"payment_sync_min"`
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Strategy struct {
		MinSpreadPercent            float64 `toml:"min_spread_percent"` // 每小时价差，百分数
		MinPositionUSD              float64 `toml:"min_position_usd"`
		BalanceUsageFraction        float64 `toml:"balance_usage_fraction"`
		BaseLeverage                float64 `toml:"base_leverage"`
		MaxBreakEvenDays            float64 `toml:"max_break_even_days"`
		MinOpenInterestUSD          float64 `toml:"min_open_interest_usd"`
		MinAggregateOpenInterestUSD float64 `toml:"min_aggregate_open_interest_usd"`
		MinDailyVolumeUSD           float64 `toml:"min_daily_volume_usd"`
		PerpSpotHedging             *bool   `toml:"perp_spot_hedging"`
		HedgeTolerancePercent       float64 `toml:"hedge_tolerance_percent"`
	} `toml:"strategy"`

	Exchange struct {
		Hyperliquid ExchangeConfig `toml:"hyperliquid"`
		Aster       ExchangeConfig `toml:"aster"`
		Lighter     ExchangeConfig `toml:"lighter"`
	} `toml:"exchange"`

	Wallet struct {
		Address       string `toml:"address"`
		PrivateKeyEnv string `toml:"private_key_env"` // 私钥所在环境变量名
		RPCURL        string `toml:"rpc_url"`
		USDCContract  string `toml:"usdc_contract"`
	} `toml:"wallet"`

	Treasury struct {
		Enabled            bool    `toml:"enabled"`
		Address            string  `toml:"address"`
		DeployedCapitalUSD float64 `toml:"deployed_capital_usd"`
	} `toml:"treasury"`

	Storage struct {
		Driver      string `toml:"driver"` // sqlite | postgres | none
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.PrintEveryMin <= 0 {
		cfg.App.PrintEveryMin = 5
	}
	if cfg.App.CycleEverySec <= 0 {
		cfg.App.CycleEverySec = 60
	}
	if cfg.App.PaymentSyncMin <= 0 {
		cfg.App.PaymentSyncMin = 15
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "perparb.db"
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	for name, ec := range cfg.exchangeConfigs() {
		if ec.Enabled && !ec.Paper && strings.TrimSpace(ec.WsURL) == "" {
			return fmt.Errorf("exchange.%s.ws_url empty but enabled", name)
		}
	}
	if len(cfg.EnabledExchanges()) == 0 {
		return errors.New("no exchange enabled")
	}

	switch cfg.Storage.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
		return errors.New("storage.postgres_dsn empty but driver is postgres")
	}

	if cfg.Wallet.RPCURL == "" && (cfg.Wallet.Address != "" || cfg.Wallet.PrivateKeyEnv != "") {
		return errors.New("wallet.rpc_url required when wallet is configured")
	}
	return nil
}

func (c *Config) exchangeConfigs() map[string]ExchangeConfig {
	return map[string]ExchangeConfig{
		"hyperliquid": c.Exchange.Hyperliquid,
		"aster":       c.Exchange.Aster,
		"lighter":     c.Exchange.Lighter,
	}
}

// ExchangeConfigFor 按交易所标识取配置
func (c *Config) ExchangeConfigFor(ex model.Exchange) (ExchangeConfig, bool) {
	switch ex {
	case model.ExchangeHyperliquid:
		return c.Exchange.Hyperliquid, c.Exchange.Hyperliquid.Enabled
	case model.ExchangeAster:
		return c.Exchange.Aster, c.Exchange.Aster.Enabled
	case model.ExchangeLighter:
		return c.Exchange.Lighter, c.Exchange.Lighter.Enabled
	default:
		return ExchangeConfig{}, false
	}
}

// EnabledExchanges 启用的交易所列表，顺序固定
func (c *Config) EnabledExchanges() []model.Exchange {
	out := make([]model.Exchange, 0, 3)
	for _, ex := range model.AllExchanges() {
		if _, enabled := c.ExchangeConfigFor(ex); enabled {
			out = append(out, ex)
		}
	}
	return out
}

// BuildStrategyConfig 把 toml 配置叠加到默认策略参数上并校验。
// 未设置的字段保持默认值。
func (c *Config) BuildStrategyConfig() (*model.StrategyConfig, error) {
	sc := model.DefaultStrategyConfig()

	if c.Strategy.MinSpreadPercent > 0 {
		sc.MinSpread = model.PercentageFromPercent(c.Strategy.MinSpreadPercent)
	}
	if c.Strategy.MinPositionUSD > 0 {
		sc.MinPositionUSD = c.Strategy.MinPositionUSD
	}
	if c.Strategy.BalanceUsageFraction > 0 {
		sc.BalanceUsageFraction = c.Strategy.BalanceUsageFraction
	}
	if c.Strategy.BaseLeverage > 0 {
		sc.BaseLeverage = c.Strategy.BaseLeverage
	}
	if c.Strategy.MaxBreakEvenDays > 0 {
		sc.MaxBreakEvenDays = c.Strategy.MaxBreakEvenDays
	}
	if c.Strategy.MinOpenInterestUSD > 0 {
		sc.MinOpenInterestUSD = c.Strategy.MinOpenInterestUSD
	}
	if c.Strategy.MinAggregateOpenInterestUSD > 0 {
		sc.MinAggregateOpenInterestUSD = c.Strategy.MinAggregateOpenInterestUSD
	}
	if c.Strategy.MinDailyVolumeUSD > 0 {
		sc.MinDailyVolumeUSD = c.Strategy.MinDailyVolumeUSD
	}
	if c.Strategy.PerpSpotHedging != nil {
		sc.PerpSpotHedging = *c.Strategy.PerpSpotHedging
	}
	if c.Strategy.HedgeTolerancePercent > 0 {
		sc.HedgeTolerance = model.PercentageFromPercent(c.Strategy.HedgeTolerancePercent)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	return sc, nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
