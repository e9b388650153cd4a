package ingest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truthplane/engine/internal/adapters"
	"github.com/truthplane/engine/internal/metrics"
)

const (
	// marketSyncLimit caps markets fetched per venue per sync.
	marketSyncLimit = 200

	// marketSyncTimeout bounds one venue's fetch so a hung endpoint never
	// stalls the cycle.
	marketSyncTimeout = 20 * time.Second
)

// WatchMarkets periodically snapshots every venue's open markets into the
// store. The market table feeds trend clustering, cross-venue fusion, and
// the resolution sweep. Blocks until ctx is cancelled.
func (p *Pipeline) WatchMarkets(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.SyncMarkets(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.SyncMarkets(ctx)
	}
}

// SyncMarkets fans out to every adapter at once and upserts the markets
// each one reports. A failing venue loses one cycle of coverage and never
// blocks the others.
func (p *Pipeline) SyncMarkets(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range p.registry.All() {
		adapter := a
		g.Go(func() error {
			p.syncPlatform(gctx, adapter)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) syncPlatform(ctx context.Context, adapter adapters.Adapter) {
	fetchCtx, cancel := context.WithTimeout(ctx, marketSyncTimeout)
	defer cancel()

	markets, err := adapter.GetActiveMarkets(fetchCtx, marketSyncLimit)
	if err != nil {
		p.log.Warn().Err(err).Str("platform", string(adapter.Platform())).
			Msg("Market sync fetch failed")
		metrics.AdapterErrors.WithLabelValues(string(adapter.Platform())).Inc()
		_ = p.store.RecordSyncError(ctx, adapter.Platform(), err.Error())
		return
	}

	stored := 0
	for _, m := range markets {
		if err := p.store.UpsertMarket(ctx, m); err != nil {
			p.log.Error().Err(err).Str("platform", string(m.Platform)).
				Str("market", m.ID).Msg("Failed to upsert market")
			continue
		}
		stored++
	}
	p.log.Debug().Str("platform", string(adapter.Platform())).
		Int("markets", stored).Msg("Market snapshot synced")
}
