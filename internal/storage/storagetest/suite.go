// Package storagetest holds the behavior every storage.Table must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvdb/kvdb/internal/storage"
)

// Base is the reference instant used by the suite
var Base = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a table implementation. newTable must return an empty table
// that is closed by the caller's cleanup.
func Run(t *testing.T, newTable func(t *testing.T) storage.Table) {
	t.Run("InsertAndRead", func(t *testing.T) { testInsertAndRead(t, newTable(t)) })
	t.Run("InsertDuplicate", func(t *testing.T) { testInsertDuplicate(t, newTable(t)) })
	t.Run("ReadRefreshesActivity", func(t *testing.T) { testReadRefreshes(t, newTable(t)) })
	t.Run("RefreshIsMonotonic", func(t *testing.T) { testMonotonic(t, newTable(t)) })
	t.Run("UpdateValue", func(t *testing.T) { testUpdateValue(t, newTable(t)) })
	t.Run("UpdateReadOnly", func(t *testing.T) { testUpdateReadOnly(t, newTable(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newTable(t)) })
	t.Run("DeleteInactiveBefore", func(t *testing.T) { testDeleteInactive(t, newTable(t)) })
	t.Run("Stat", func(t *testing.T) { testStat(t, newTable(t)) })
	t.Run("MissingKeys", func(t *testing.T) { testMissing(t, newTable(t)) })
	t.Run("ConcurrentInsert", func(t *testing.T) { testConcurrentInsert(t, newTable(t)) })
	t.Run("SweepDuringReads", func(t *testing.T) { testSweepDuringReads(t, newTable(t)) })
	t.Run("LargeValue", func(t *testing.T) { testLargeValue(t, newTable(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newTable(t).Ping(context.Background())) })
}

func record(key, value string, readOnly bool, at time.Time) storage.Record {
	return storage.Record{Key: key, Value: value, ReadOnly: readOnly, CreatedAt: at, LastActiveAt: at}
}

func testInsertAndRead(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("alpha", "one", false, Base)))

	rec, err := table.ReadAndTouch(ctx, "alpha", Base)
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Key)
	assert.Equal(t, "one", rec.Value)
	assert.False(t, rec.ReadOnly)
	assert.True(t, rec.CreatedAt.Equal(Base))
	assert.True(t, rec.LastActiveAt.Equal(Base))
}

func testInsertDuplicate(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("dup", "first", false, Base)))

	err := table.Insert(ctx, record("dup", "second", true, Base.Add(time.Second)))
	assert.ErrorIs(t, err, storage.ErrExists)

	rec, err := table.ReadAndTouch(ctx, "dup", Base)
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Value, "existing record is untouched")
	assert.False(t, rec.ReadOnly)
}

func testReadRefreshes(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("k", "v", false, Base)))

	later := Base.Add(30 * time.Minute)
	rec, err := table.ReadAndTouch(ctx, "k", later)
	require.NoError(t, err)
	assert.True(t, rec.LastActiveAt.Equal(later))
	assert.True(t, rec.CreatedAt.Equal(Base), "created_at never changes")

	stat, err := table.Stat(ctx, "k")
	require.NoError(t, err)
	assert.True(t, stat.LastActiveAt.Equal(later), "refresh is persisted")
}

func testMonotonic(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("m", "v", false, Base)))

	_, err := table.ReadAndTouch(ctx, "m", Base.Add(time.Hour))
	require.NoError(t, err)

	rec, err := table.ReadAndTouch(ctx, "m", Base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, rec.LastActiveAt.Equal(Base.Add(time.Hour)), "an older now does not move activity back")

	rec, err = table.UpdateValue(ctx, "m", "v2", Base)
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Value)
	assert.True(t, rec.LastActiveAt.Equal(Base.Add(time.Hour)))
}

func testUpdateValue(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("u", "v1", false, Base)))

	later := Base.Add(time.Minute)
	rec, err := table.UpdateValue(ctx, "u", "v2", later)
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Value)
	assert.True(t, rec.LastActiveAt.Equal(later))

	rec, err = table.ReadAndTouch(ctx, "u", later)
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.Value)
}

func testUpdateReadOnly(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("ro", "fixed", true, Base)))

	_, err := table.UpdateValue(ctx, "ro", "changed", Base.Add(time.Minute))
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	rec, err := table.ReadAndTouch(ctx, "ro", Base)
	require.NoError(t, err)
	assert.Equal(t, "fixed", rec.Value)
	assert.True(t, rec.ReadOnly)
	assert.True(t, rec.LastActiveAt.Equal(Base), "a rejected update is not activity")

	require.NoError(t, table.Delete(ctx, "ro"), "read-only keys can be deleted")
}

func testDelete(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("d", "v", false, Base)))

	require.NoError(t, table.Delete(ctx, "d"))
	assert.ErrorIs(t, table.Delete(ctx, "d"), storage.ErrNotFound)

	_, err := table.ReadAndTouch(ctx, "d", Base)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, table.Insert(ctx, record("d", "again", false, Base)), "a deleted key can be recreated")
}

func testDeleteInactive(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("old", "v", false, Base)))
	require.NoError(t, table.Insert(ctx, record("edge", "v", false, Base.Add(time.Hour))))
	require.NoError(t, table.Insert(ctx, record("fresh", "v", true, Base.Add(2*time.Hour))))
	require.NoError(t, table.Insert(ctx, record("touched", "v", false, Base)))

	_, err := table.ReadAndTouch(ctx, "touched", Base.Add(90*time.Minute))
	require.NoError(t, err)

	deleted, err := table.DeleteInactiveBefore(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = table.Stat(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	for _, key := range []string{"edge", "fresh", "touched"} {
		_, err := table.Stat(ctx, key)
		assert.NoError(t, err, "%s survives: not strictly before cutoff", key)
	}

	deleted, err = table.DeleteInactiveBefore(ctx, Base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted, "read-only keys expire too")

	deleted, err = table.DeleteInactiveBefore(ctx, Base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func testStat(t *testing.T, table storage.Table) {
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, record("s", "payload", true, Base)))

	rec, err := table.Stat(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "s", rec.Key)
	assert.True(t, rec.ReadOnly)
	assert.Empty(t, rec.Value)
	assert.True(t, rec.LastActiveAt.Equal(Base))
}

func testMissing(t *testing.T, table storage.Table) {
	ctx := context.Background()

	_, err := table.ReadAndTouch(ctx, "nope", Base)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = table.UpdateValue(ctx, "nope", "v", Base)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = table.Stat(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, table.Delete(ctx, "nope"), storage.ErrNotFound)
}

func testConcurrentInsert(t *testing.T, table storage.Table) {
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- table.Insert(ctx, record("race", fmt.Sprintf("writer-%d", i), false, Base))
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrExists)
	}
	assert.Equal(t, 1, succeeded, "exactly one insert wins")
}

func testSweepDuringReads(t *testing.T, table storage.Table) {
	ctx := context.Background()
	const keys = 40
	for i := 0; i < keys; i++ {
		require.NoError(t, table.Insert(ctx, record(fmt.Sprintf("idle-%02d", i), "v", false, Base)))
	}

	var deleted int64
	var sweepErr error
	readErrs := make([]error, keys)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		deleted, sweepErr = table.DeleteInactiveBefore(ctx, Base.Add(time.Hour))
	}()
	for i := 0; i < keys; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, readErrs[i] = table.ReadAndTouch(ctx, fmt.Sprintf("idle-%02d", i), Base.Add(2*time.Hour))
		}(i)
	}
	wg.Wait()
	require.NoError(t, sweepErr)

	survivors := int64(0)
	for i, readErr := range readErrs {
		key := fmt.Sprintf("idle-%02d", i)
		_, statErr := table.Stat(ctx, key)
		if readErr == nil {
			assert.NoError(t, statErr, "%s was refreshed so the sweep must keep it", key)
		} else {
			assert.ErrorIs(t, readErr, storage.ErrNotFound)
			assert.ErrorIs(t, statErr, storage.ErrNotFound)
		}
		if statErr == nil {
			survivors++
		}
	}
	assert.Equal(t, int64(keys), deleted+survivors)
}

func testLargeValue(t *testing.T, table storage.Table) {
	ctx := context.Background()
	value := make([]byte, 1<<20)
	for i := range value {
		value[i] = 'a' + byte(i%26)
	}

	require.NoError(t, table.Insert(ctx, record("big", string(value), false, Base)))
	rec, err := table.ReadAndTouch(ctx, "big", Base)
	require.NoError(t, err)
	assert.Equal(t, string(value), rec.Value)
}
