package ingest

import (
	"context"
	"time"
)

// WatchResolutions periodically asks each venue for the outcome of stored
// active markets and settles the ones that resolved. Blocks until ctx is
// cancelled.
func (p *Pipeline) WatchResolutions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.resolveCycle(ctx)
	}
}

func (p *Pipeline) resolveCycle(ctx context.Context) {
	markets, err := p.store.GetAllActiveMarkets(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to load active markets for resolution scan")
		return
	}

	for _, m := range markets {
		adapter, ok := p.registry.Get(m.Platform)
		if !ok {
			continue
		}
		outcome, err := adapter.GetMarketOutcome(ctx, m.ID)
		if err != nil {
			p.log.Warn().Err(err).Str("platform", string(m.Platform)).
				Str("market", m.ID).Msg("Outcome probe failed")
			continue
		}
		if !outcome.Resolved {
			continue
		}
		if err := p.ResolveMarket(ctx, m.Platform, m.ID, outcome); err != nil {
			p.log.Error().Err(err).Str("platform", string(m.Platform)).
				Str("market", m.ID).Msg("Failed to resolve market")
		}
	}
}
