package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsCarrySpecValues(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, 15*time.Second, cfg.Adapters.RequestTimeout)
	assert.Equal(t, 3, cfg.Adapters.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Adapters.RetryBaseDelay)
	assert.Equal(t, 50, cfg.Bots.SmartMoney.TrackedTraders)
	assert.Equal(t, 3, cfg.Bots.AntiGaming.WashThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Bots.Trends.CycleInterval)
	assert.Equal(t, time.Hour, cfg.Bots.Cross.SignalTTL)
	assert.Equal(t, 24*time.Hour, cfg.Bots.Backtest.CacheTTL)
	assert.Equal(t, uint64(2000), cfg.Chains["bsc"].BlockChunk)
	assert.Equal(t, uint64(100), cfg.Chains["polygon"].BlockChunk)
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.App.Environment = "prod"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.environment")
}

func TestValidateRequiresSharedKeyInProduction(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.App.Environment = "production"
	cfg.API.SharedKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.shared_key")

	cfg.API.SharedKey = "s3cret-sh4red-key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPorts(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.API.Port = 99999
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig(t)
	cfg.Database.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateVaultNeedsAddress(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Vault.Enabled = true
	cfg.Vault.Address = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault.address")
}

func TestAdapterToggleDefaultsOn(t *testing.T) {
	a := AdaptersConfig{}
	assert.True(t, a.IsEnabled("polymarket"))

	a.Enabled = map[string]bool{"polymarket": false}
	assert.False(t, a.IsEnabled("polymarket"))
	assert.True(t, a.IsEnabled("kalshi"))
}
