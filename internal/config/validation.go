package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for startup-fatal problems. A failed
// validation exits the process with a diagnostic; nothing here is retried.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Sprintf("app.environment must be development, staging, or production (got %q)", c.App.Environment))
	}

	switch strings.ToLower(c.App.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("app.log_level %q is not a valid level", c.App.LogLevel))
	}

	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port %d is out of range", c.Database.Port))
	}
	if c.Database.PoolSize <= 0 {
		errs = append(errs, "database.pool_size must be positive")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if c.Adapters.MaxRetries < 0 {
		errs = append(errs, "adapters.max_retries must not be negative")
	}
	if c.Adapters.RequestTimeout <= 0 {
		errs = append(errs, "adapters.request_timeout must be positive")
	}
	if c.Adapters.PollInterval <= 0 {
		errs = append(errs, "adapters.poll_interval must be positive")
	}

	for name, chain := range c.Chains {
		if chain.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s.rpc_url is required", name))
		}
		if chain.BlockChunk == 0 {
			errs = append(errs, fmt.Sprintf("chains.%s.block_chunk must be positive", name))
		}
	}

	if c.Bots.SmartMoney.TrackedTraders <= 0 {
		errs = append(errs, "bots.smart_money.tracked_traders must be positive")
	}
	if c.Bots.AntiGaming.WashThreshold <= 0 {
		errs = append(errs, "bots.anti_gaming.wash_threshold must be positive")
	}
	if p := c.Bots.CopyTrade.AllocationPercent; p < 0 || p > 100 {
		errs = append(errs, fmt.Sprintf("bots.copy_trade.allocation_percent %.1f must be within [0,100]", p))
	}

	if c.Vault.Enabled && c.Vault.Address == "" {
		errs = append(errs, "vault.address is required when vault is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if c.App.Environment == "production" && c.API.SharedKey == "" {
		errs = append(errs, "api.shared_key is required in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
