package adapters

import (
	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/chain"
	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/models"
)

// BuildRegistry constructs every enabled adapter. bscChain may be nil, in
// which case the on-chain PancakeSwap adapter is skipped.
func BuildRegistry(cfg *config.AdaptersConfig, bscChain *chain.Client, log zerolog.Logger) (*Registry, error) {
	retryCfg := RetryConfig{
		MaxAttempts:    cfg.MaxRetries,
		BaseDelay:      cfg.RetryBaseDelay,
		RequestTimeout: cfg.RequestTimeout,
	}
	poll := cfg.PollInterval

	reg := NewRegistry()
	add := func(platform models.Platform, build func() Adapter) error {
		if !cfg.IsEnabled(string(platform)) {
			log.Info().Str("platform", string(platform)).Msg("Adapter disabled by config")
			return nil
		}
		return reg.Register(build())
	}

	type entry struct {
		platform models.Platform
		build    func() Adapter
	}
	entries := []entry{
		{models.PlatformPolymarket, func() Adapter { return NewPolymarket("", retryCfg, poll, log) }},
		{models.PlatformAzuro, func() Adapter { return NewAzuro(retryCfg, poll, log) }},
		{models.PlatformOvertime, func() Adapter { return NewOvertime(retryCfg, poll, log) }},
		{models.PlatformThales, func() Adapter { return NewThales(retryCfg, poll, log) }},
		{models.PlatformKalshi, func() Adapter { return NewKalshi(retryCfg, poll, log) }},
		{models.PlatformManifold, func() Adapter { return NewManifold(retryCfg, poll, log) }},
		{models.PlatformLimitless, func() Adapter { return NewLimitless(retryCfg, poll, log) }},
		{models.PlatformDrift, func() Adapter { return NewDrift(retryCfg, poll, log) }},
		{models.PlatformPolkamarkets, func() Adapter { return NewPolkamarkets(retryCfg, poll, log) }},
		{models.PlatformSXBet, func() Adapter { return NewSXBet(retryCfg, poll, log) }},
		{models.PlatformMyriad, func() Adapter { return NewMyriad(retryCfg, poll, log) }},
	}
	if bscChain != nil {
		entries = append(entries, entry{models.PlatformPancakeSwap, func() Adapter {
			return NewPancakeSwap(bscChain, retryCfg, poll, log)
		}})
	}

	for _, e := range entries {
		if err := add(e.platform, e.build); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
