package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// seenSetCap bounds the duplicate-suppression memory of a polling
// subscription. Evicted FIFO once full.
const seenSetCap = 1000

// seenSet is a bounded insertion-ordered set of natural keys.
type seenSet struct {
	keys  map[string]struct{}
	order []string
}

func newSeenSet() *seenSet {
	return &seenSet{keys: make(map[string]struct{}, seenSetCap)}
}

// Add inserts a key, evicting the oldest when at capacity. Returns false
// when the key was already present.
func (s *seenSet) Add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	if len(s.order) >= seenSetCap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// pollFetch pulls a batch of recent bets from the venue.
type pollFetch func(ctx context.Context) ([]*models.Bet, error)

// startPolling runs a polling subscription: periodic fetch, seen-set
// dedup, onBet for each new bet. Fetch errors are logged and skipped so a
// flaky venue never kills the loop. The returned disposer is idempotent
// and independent of the loop's health.
func startPolling(platform models.Platform, interval time.Duration, fetch pollFetch, onBet BetHandler, log zerolog.Logger) Disposer {
	ctx, cancel := context.WithCancel(context.Background())
	seen := newSeenSet()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			bets, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("platform", string(platform)).
					Msg("Polling fetch failed")
				continue
			}

			for _, bet := range bets {
				if seen.Add(bet.NaturalKey()) {
					onBet(bet)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}
