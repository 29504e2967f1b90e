package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gmx-trade-agent/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Arbitrum ArbitrumConfig `mapstructure:"arbitrum"`
	GMX      GMXConfig      `mapstructure:"gmx"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Intent   IntentConfig   `mapstructure:"intent"`
	Trade    TradeConfig    `mapstructure:"trade"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MonitorConfig governs the alert sweep cadence.
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToStart    bool          `mapstructure:"align_to_start"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ArbitrumConfig covers on-chain data access.
type ArbitrumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TokenConfig describes one tradable token known to the agent.
type TokenConfig struct {
	Symbol   string  `mapstructure:"symbol"`
	Address  string  `mapstructure:"address"`
	Decimals int32   `mapstructure:"decimals"`
	MinPrice float64 `mapstructure:"min_price"`
	MaxPrice float64 `mapstructure:"max_price"`
}

// GMXConfig captures GMX protocol contract addresses and the token whitelist.
type GMXConfig struct {
	VaultAddress  string        `mapstructure:"vault_address"`
	RouterAddress string        `mapstructure:"router_address"`
	Tokens        []TokenConfig `mapstructure:"tokens"`
}

// AlertingConfig defines signal routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig 描述 Discord Webhook 告警参数。
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// IntentConfig selects the natural-language intent parser backend.
type IntentConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TradeConfig governs the swap executor.
type TradeConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PrivateKey      string        `mapstructure:"private_key"`
	Receiver        string        `mapstructure:"receiver"`
	DefaultSlippage float64       `mapstructure:"default_slippage"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GMXAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gmxagent")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.interval", "10s")
	v.SetDefault("monitor.align_to_start", false)
	v.SetDefault("monitor.startup_delay", "0s")
	v.SetDefault("monitor.advisory_lock_key", int64(0x676d7861))

	v.SetDefault("arbitrum.rpc_url", "https://arb1.arbitrum.io/rpc")
	v.SetDefault("arbitrum.chain_id", int64(42161))
	v.SetDefault("arbitrum.request_timeout", "10s")

	v.SetDefault("gmx.vault_address", "0x489ee077994B6658eAfA855C308275EAd8097C4A")
	v.SetDefault("gmx.router_address", "0xaBBc5F99639c9B6bCb58544ddf04EFA6802F4064")
	v.SetDefault("gmx.tokens", []map[string]any{
		{"symbol": "ETH", "address": "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "decimals": 18, "min_price": 100.0, "max_price": 100000.0},
		{"symbol": "BTC", "address": "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", "decimals": 8, "min_price": 1000.0, "max_price": 1000000.0},
		{"symbol": "USDC", "address": "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", "decimals": 6, "min_price": 0.5, "max_price": 2.0},
		{"symbol": "LINK", "address": "0xf97f4df75117a78c1A5a0DBb814Af92458539FB4", "decimals": 18, "min_price": 0.5, "max_price": 10000.0},
		{"symbol": "UNI", "address": "0xFa7F8980b0f1E64A2062791cc3b0871572f1F7f0", "decimals": 18, "min_price": 0.5, "max_price": 10000.0},
	})

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"discord"})
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.username", "gmxagent")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("intent.provider", "groq")
	v.SetDefault("intent.model", "deepseek-r1-distill-llama-70b")
	v.SetDefault("intent.temperature", 0.0)
	v.SetDefault("intent.request_timeout", "30s")

	v.SetDefault("trade.enabled", false)
	v.SetDefault("trade.default_slippage", 0.02)
	v.SetDefault("trade.request_timeout", "30s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Trade.DefaultSlippage < 0 || c.Trade.DefaultSlippage >= 1 {
		return fmt.Errorf("trade.default_slippage must be in [0, 1)")
	}
	if len(c.GMX.Tokens) == 0 {
		return fmt.Errorf("gmx.tokens must list at least one token")
	}
	for _, token := range c.GMX.Tokens {
		if token.Symbol == "" || token.Address == "" {
			return fmt.Errorf("gmx.tokens entries require symbol and address")
		}
		if token.Decimals <= 0 {
			return fmt.Errorf("gmx.tokens[%s].decimals must be greater than zero", token.Symbol)
		}
		if token.MinPrice < 0 || (token.MaxPrice > 0 && token.MaxPrice <= token.MinPrice) {
			return fmt.Errorf("gmx.tokens[%s] sanity band is inverted", token.Symbol)
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url 必须配置")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Trade.Enabled && c.Trade.PrivateKey == "" {
		return fmt.Errorf("trade.private_key required when trade.enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
