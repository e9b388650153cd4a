// Package config loads and validates engine configuration from YAML and
// environment, and owns the global logger setup.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	App      AppConfig              `mapstructure:"app"`
	Database DatabaseConfig         `mapstructure:"database"`
	Redis    RedisConfig            `mapstructure:"redis"`
	NATS     NATSConfig             `mapstructure:"nats"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
	Adapters AdaptersConfig         `mapstructure:"adapters"`
	Bots     BotsConfig             `mapstructure:"bots"`
	API      APIConfig              `mapstructure:"api"`
	Alerting AlertingConfig         `mapstructure:"alerting"`
	Vault    VaultConfig            `mapstructure:"vault"`
	Metrics  MetricsConfig          `mapstructure:"metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig contains the optional external event mirror settings.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// ChainConfig holds per-chain RPC endpoints and backfill tuning.
type ChainConfig struct {
	RPCURL     string `mapstructure:"rpc_url"`
	WSURL      string `mapstructure:"ws_url"`
	ChainID    int64  `mapstructure:"chain_id"`
	BlockChunk uint64 `mapstructure:"block_chunk"` // FilterLogs chunk size
	ChunkDelay int    `mapstructure:"chunk_delay"` // ms between chunks
}

// AdaptersConfig holds cross-adapter tunables plus per-platform toggles.
type AdaptersConfig struct {
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	MaxRetries     int             `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration   `mapstructure:"retry_base_delay"`
	PollInterval   time.Duration   `mapstructure:"poll_interval"`
	MinBetUSD      float64         `mapstructure:"min_bet_usd"`
	Enabled        map[string]bool `mapstructure:"enabled"`
}

// IsEnabled reports whether a platform adapter is switched on. Adapters are
// on by default; only an explicit false disables one.
func (a *AdaptersConfig) IsEnabled(platform string) bool {
	if a.Enabled == nil {
		return true
	}
	enabled, ok := a.Enabled[platform]
	return !ok || enabled
}

// BotsConfig holds per-analyzer feature toggles and cadences.
type BotsConfig struct {
	SmartMoney SmartMoneyConfig `mapstructure:"smart_money"`
	Trends     TrendsConfig     `mapstructure:"trends"`
	Cross      CrossConfig      `mapstructure:"cross"`
	AntiGaming AntiGamingConfig `mapstructure:"anti_gaming"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	CopyTrade  CopyTradeConfig  `mapstructure:"copy_trade"`
}

// SmartMoneyConfig tunes the smart-money aggregator.
type SmartMoneyConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TrackedTraders  int           `mapstructure:"tracked_traders"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// TrendsConfig tunes the trend detector.
type TrendsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	MarketsLimit  int           `mapstructure:"markets_limit"`
	TopN          int           `mapstructure:"top_n"`
}

// CrossConfig tunes cross-platform signal fusion.
type CrossConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	SignalTTL     time.Duration `mapstructure:"signal_ttl"`
}

// AntiGamingConfig tunes the anti-gaming detector.
type AntiGamingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ScanInterval  time.Duration `mapstructure:"scan_interval"`
	WashThreshold int           `mapstructure:"wash_threshold"`
}

// BacktestConfig tunes the backtesting engine.
type BacktestConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// CopyTradeConfig tunes the copy-trade executor state machine.
type CopyTradeConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	Portfolio         float64 `mapstructure:"portfolio"` // starting bankroll, native units
	AllocationPercent float64 `mapstructure:"allocation_percent"`
	MaxBetSize        float64 `mapstructure:"max_bet_size"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
}

// APIConfig contains REST/WebSocket server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	SharedKey   string   `mapstructure:"shared_key"` // empty disables auth
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// GetAPIAddr returns the API server address.
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AlertingConfig configures gaming-alert delivery channels.
type AlertingConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// VaultConfig configures optional secret resolution via HashiCorp Vault.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TRUTHPLANE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults plus environment variables.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "truthplane")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "truthplane")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "truthplane.events.")

	v.SetDefault("chains.bsc.rpc_url", "https://bsc-dataseed1.binance.org")
	v.SetDefault("chains.bsc.ws_url", "")
	v.SetDefault("chains.bsc.chain_id", 56)
	v.SetDefault("chains.bsc.block_chunk", 2000)
	v.SetDefault("chains.bsc.chunk_delay", 200)
	v.SetDefault("chains.polygon.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chains.polygon.chain_id", 137)
	v.SetDefault("chains.polygon.block_chunk", 100)
	v.SetDefault("chains.polygon.chunk_delay", 1000)

	v.SetDefault("adapters.request_timeout", "15s")
	v.SetDefault("adapters.max_retries", 3)
	v.SetDefault("adapters.retry_base_delay", "2s")
	v.SetDefault("adapters.poll_interval", "30s")
	v.SetDefault("adapters.min_bet_usd", 1.0)

	v.SetDefault("bots.smart_money.enabled", true)
	v.SetDefault("bots.smart_money.tracked_traders", 50)
	v.SetDefault("bots.smart_money.refresh_interval", "60s")
	v.SetDefault("bots.trends.enabled", true)
	v.SetDefault("bots.trends.cycle_interval", "2m")
	v.SetDefault("bots.trends.markets_limit", 100)
	v.SetDefault("bots.trends.top_n", 100)
	v.SetDefault("bots.cross.enabled", true)
	v.SetDefault("bots.cross.cycle_interval", "2m")
	v.SetDefault("bots.cross.signal_ttl", "1h")
	v.SetDefault("bots.anti_gaming.enabled", true)
	v.SetDefault("bots.anti_gaming.scan_interval", "5m")
	v.SetDefault("bots.anti_gaming.wash_threshold", 3)
	v.SetDefault("bots.backtest.enabled", true)
	v.SetDefault("bots.backtest.cache_ttl", "24h")
	v.SetDefault("bots.copy_trade.enabled", false)
	v.SetDefault("bots.copy_trade.portfolio", 1.0)
	v.SetDefault("bots.copy_trade.allocation_percent", 5.0)
	v.SetDefault("bots.copy_trade.max_bet_size", 0.5)
	v.SetDefault("bots.copy_trade.min_confidence", 70.0)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.path", "truthplane")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
