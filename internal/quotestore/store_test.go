package quotestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaillard/dtc-feed/internal/dtc"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertQuote_NullsForUnknownFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	q := dtc.Quote{
		LastPrice:  dtc.NullFloat{Float64: 50000.0, Valid: true},
		LastVolume: dtc.NullFloat{Float64: 0.25, Valid: true},
		UpdatedAt:  time.UnixMilli(1700000000000),
	}
	require.NoError(t, store.UpsertQuote(ctx, "BTCUSDT_PERP_BINANCE", q))

	got, err := store.GetQuote(ctx, "BTCUSDT_PERP_BINANCE")
	require.NoError(t, err)
	assert.True(t, got.LastPrice.Valid)
	assert.Equal(t, 50000.0, got.LastPrice.Float64)
	assert.False(t, got.BidPrice.Valid, "unknown bid stays NULL, not zero")
	assert.False(t, got.SessionHigh.Valid)
	assert.Equal(t, int64(1700000000000), got.UpdatedUnixMillis)
}

func TestUpsertQuote_ReplacesPreviousRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := dtc.Quote{LastPrice: dtc.NullFloat{Float64: 10, Valid: true}}
	require.NoError(t, store.UpsertQuote(ctx, "ESZ5", first))

	second := dtc.Quote{
		LastPrice: dtc.NullFloat{Float64: 11, Valid: true},
		BidPrice:  dtc.NullFloat{Float64: 10.75, Valid: true},
	}
	require.NoError(t, store.UpsertQuote(ctx, "ESZ5", second))

	got, err := store.GetQuote(ctx, "ESZ5")
	require.NoError(t, err)
	assert.Equal(t, 11.0, got.LastPrice.Float64)
	assert.Equal(t, 10.75, got.BidPrice.Float64)
}

func TestTrades_AppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1700000000000)
	require.NoError(t, store.AppendTrade(ctx, "ESZ5", 5000.25, 1, base))
	require.NoError(t, store.AppendTrade(ctx, "ESZ5", 5000.50, 2, base.Add(time.Second)))
	require.NoError(t, store.AppendTrade(ctx, "NQZ5", 17000.0, 1, base))

	trades, err := store.RecentTrades(ctx, "ESZ5", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 5000.50, trades[0].Price, "newest first")
	assert.Equal(t, 5000.25, trades[1].Price)

	trades, err = store.RecentTrades(ctx, "ESZ5", 1)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}
