package adapters

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthplane/engine/internal/models"
)

func TestSeenSetDeduplicates(t *testing.T) {
	s := newSeenSet()
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("b"))
}

func TestSeenSetEvictsFIFO(t *testing.T) {
	s := newSeenSet()
	for i := 0; i < seenSetCap; i++ {
		require.True(t, s.Add(fmt.Sprintf("key-%d", i)))
	}
	// One past capacity evicts the oldest entry only.
	assert.True(t, s.Add("overflow"))
	assert.True(t, s.Add("key-0"), "oldest key should have been evicted")
	assert.False(t, s.Add("key-1"), "second-oldest key should survive")
}

func TestPollingSubscriptionSuppressesDuplicates(t *testing.T) {
	mkBet := func(id string) *models.Bet {
		return &models.Bet{
			ID:       id,
			Platform: models.PlatformManifold,
			Amount:   decimal.New(1, 18),
		}
	}

	var mu sync.Mutex
	batch := []*models.Bet{mkBet("1"), mkBet("2")}
	fetch := func(context.Context) ([]*models.Bet, error) {
		mu.Lock()
		defer mu.Unlock()
		return batch, nil
	}

	var got []string
	onBet := func(b *models.Bet) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, b.ID)
	}

	dispose := startPolling(models.PlatformManifold, 5*time.Millisecond, fetch, onBet, zerolog.Nop())
	defer dispose()

	// Let several polls deliver the same batch, then add a third bet.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	batch = append(batch, mkBet("3"))
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestPollingSurvivesFetchErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fetch := func(context.Context) ([]*models.Bet, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("venue down")
		}
		return []*models.Bet{{ID: "after-error", Platform: models.PlatformKalshi, Amount: decimal.New(1, 18)}}, nil
	}

	delivered := make(chan string, 1)
	onBet := func(b *models.Bet) {
		select {
		case delivered <- b.ID:
		default:
		}
	}

	dispose := startPolling(models.PlatformKalshi, 5*time.Millisecond, fetch, onBet, zerolog.Nop())
	defer dispose()

	select {
	case id := <-delivered:
		assert.Equal(t, "after-error", id)
	case <-time.After(time.Second):
		t.Fatal("polling loop did not recover from fetch error")
	}
}

func TestDisposerIsIdempotent(t *testing.T) {
	fetch := func(context.Context) ([]*models.Bet, error) { return nil, nil }
	dispose := startPolling(models.PlatformDrift, time.Millisecond, fetch, func(*models.Bet) {}, zerolog.Nop())
	dispose()
	dispose() // second call must not panic
}
