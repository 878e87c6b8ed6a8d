package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvdb/kvdb/internal/sweeper"
	"github.com/kvdb/kvdb/internal/test"
)

// The sweeper's own loop runs on wall-clock tickers, so these tests drive
// SweepOnce at each simulated tick.

func TestExpiration_UntouchedKeyIsSwept(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := test.NewClock()
			table := b.open(t)
			a := newAccessor(t, table, clock)

			s, err := sweeper.New(table, sweeper.MustParseRetention("1 hour"), time.Minute, sweeper.WithClock(clock.Now))
			require.NoError(t, err)

			_, err = a.Create(ctx, "a", "v", false)
			require.NoError(t, err)

			for minute := 1; minute <= 60; minute++ {
				clock.Advance(time.Minute)
				deleted, err := s.SweepOnce(ctx)
				require.NoError(t, err)
				require.Zero(t, deleted, "nothing expires by minute %d", minute)
			}

			meta, err := a.Stat(ctx, "a")
			require.NoError(t, err, "exactly one hour idle is not yet expired")
			assert.True(t, meta.LastActiveAt.Equal(test.Epoch))

			clock.Advance(time.Minute)
			deleted, err := s.SweepOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)

			_, err = a.Read(ctx, "a")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestExpiration_ReadKeepsKeyAlive(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := test.NewClock()
			table := b.open(t)
			a := newAccessor(t, table, clock)

			s, err := sweeper.New(table, sweeper.MustParseRetention("1 hour"), time.Minute, sweeper.WithClock(clock.Now))
			require.NoError(t, err)

			_, err = a.Create(ctx, "kept", "v", false)
			require.NoError(t, err)
			_, err = a.Create(ctx, "dropped", "v", true)
			require.NoError(t, err)

			clock.Advance(50 * time.Minute)
			_, err = a.Read(ctx, "kept")
			require.NoError(t, err)

			clock.Advance(20 * time.Minute)
			deleted, err := s.SweepOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)

			value, err := a.Read(ctx, "kept")
			require.NoError(t, err, "a read after the cutoff keeps the key")
			assert.Equal(t, "v", value)

			_, err = a.Read(ctx, "dropped")
			assert.ErrorIs(t, err, ErrKeyNotFound, "read-only keys expire as well")
		})
	}
}

func TestExpiration_UpdateKeepsKeyAlive(t *testing.T) {
	ctx := context.Background()
	clock := test.NewClock()
	table := test.SQLiteTable(t)
	a := newAccessor(t, table, clock)

	s, err := sweeper.New(table, sweeper.MustParseRetention("6 months"), time.Hour, sweeper.WithClock(clock.Now))
	require.NoError(t, err)

	_, err = a.Create(ctx, "k", "v1", false)
	require.NoError(t, err)

	clock.Set(test.Epoch.AddDate(0, 5, 0))
	_, err = a.Update(ctx, "k", "v2")
	require.NoError(t, err)

	clock.Set(test.Epoch.AddDate(0, 10, 0))
	deleted, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	clock.Set(test.Epoch.AddDate(0, 11, 1))
	deleted, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
