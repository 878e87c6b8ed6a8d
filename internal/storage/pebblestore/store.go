package pebblestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/storage"
)

// keyPrefix namespaces record keys so other data can share the database later
const keyPrefix = "k/"

// sweepChunkSize bounds how many candidates one locked delete batch re-checks
const sweepChunkSize = 256

// storedValue is the encoded form of a record; the key lives in the pebble key
type storedValue struct {
	Value        string
	ReadOnly     bool
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Store implements storage.Table on an embedded pebble database. Every
// read-modify-write runs under mu. Sweeps scan a snapshot without mu and hold
// lifeMu shared so Close waits for them.
type Store struct {
	db     *pebble.DB
	dir    string
	log    zerolog.Logger
	mu     sync.Mutex
	lifeMu sync.RWMutex
	closed bool

	// scanned is called for every record a sweep scans; tests use it to hold
	// a sweep mid-scan
	scanned func(key string)
}

var _ storage.Table = (*Store)(nil)

// Open opens or creates a pebble database in dir
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("pebble directory is required")
	}
	if err := ensureDirectory(dir); err != nil {
		return nil, fmt.Errorf("failed to create pebble directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble DB: %w", err)
	}

	s := &Store{
		db:  db,
		dir: dir,
		log: logger.WithComponent("pebblestore"),
	}
	s.log.Info().Str("dir", dir).Msg("Pebble store opened")
	return s, nil
}

func encodeKey(key string) []byte {
	return []byte(keyPrefix + key)
}

func decodeKey(encoded []byte) string {
	return string(encoded[len(keyPrefix):])
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func encodeValue(v *storedValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte) (*storedValue, error) {
	var v storedValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &v, nil
}

func (v *storedValue) toRecord(key string) storage.Record {
	return storage.Record{
		Key:          key,
		Value:        v.Value,
		ReadOnly:     v.ReadOnly,
		CreatedAt:    v.CreatedAt.UTC(),
		LastActiveAt: v.LastActiveAt.UTC(),
	}
}

// get loads and decodes one record
func (s *Store) get(key string) (*storedValue, error) {
	data, closer, err := s.db.Get(encodeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	// data is only valid until closer is closed; gob copies what it decodes
	return decodeValue(data)
}

func (s *Store) put(key string, v *storedValue) error {
	encoded, err := encodeValue(v)
	if err != nil {
		return err
	}
	if err := s.db.Set(encodeKey(key), encoded, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// lock acquires the write mutex unless the store is closed
func (s *Store) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.ErrClosed
	}
	return nil
}

// Insert stores a new record or fails with storage.ErrExists
func (s *Store) Insert(_ context.Context, rec storage.Record) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, err := s.get(rec.Key); err == nil {
		return storage.ErrExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	return s.put(rec.Key, &storedValue{
		Value:        rec.Value,
		ReadOnly:     rec.ReadOnly,
		CreatedAt:    rec.CreatedAt.UTC(),
		LastActiveAt: rec.LastActiveAt.UTC(),
	})
}

// ReadAndTouch returns the record and refreshes its activity
func (s *Store) ReadAndTouch(_ context.Context, key string, now time.Time) (storage.Record, error) {
	if err := s.lock(); err != nil {
		return storage.Record{}, err
	}
	defer s.mu.Unlock()

	v, err := s.get(key)
	if err != nil {
		return storage.Record{}, err
	}

	if active := storage.Later(v.LastActiveAt, now.UTC()); active.After(v.LastActiveAt) {
		v.LastActiveAt = active
		if err := s.put(key, v); err != nil {
			return storage.Record{}, err
		}
	}
	return v.toRecord(key), nil
}

// UpdateValue replaces the value of a writable record and refreshes activity
func (s *Store) UpdateValue(_ context.Context, key, value string, now time.Time) (storage.Record, error) {
	if err := s.lock(); err != nil {
		return storage.Record{}, err
	}
	defer s.mu.Unlock()

	v, err := s.get(key)
	if err != nil {
		return storage.Record{}, err
	}
	if v.ReadOnly {
		return storage.Record{}, storage.ErrReadOnly
	}

	v.Value = value
	v.LastActiveAt = storage.Later(v.LastActiveAt, now.UTC())
	if err := s.put(key, v); err != nil {
		return storage.Record{}, err
	}
	return v.toRecord(key), nil
}

// Delete removes the record or fails with storage.ErrNotFound
func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, err := s.get(key); err != nil {
		return err
	}
	if err := s.db.Delete(encodeKey(key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// DeleteInactiveBefore scans a snapshot for records idle since before cutoff,
// then deletes them in bounded batches. Each batch re-reads its candidates
// under the write mutex, so a record refreshed after the scan survives.
func (s *Store) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.lifeMu.RLock()
	defer s.lifeMu.RUnlock()
	if s.closed {
		return 0, storage.ErrClosed
	}

	candidates, err := s.scanInactive(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(candidates); start += sweepChunkSize {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		end := min(start+sweepChunkSize, len(candidates))
		n, err := s.deleteChunk(candidates[start:end], cutoff)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// scanInactive lists the keys whose snapshot activity is before cutoff
func (s *Store) scanInactive(ctx context.Context, cutoff time.Time) ([]string, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	prefix := []byte(keyPrefix)
	iter, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}

	var candidates []string
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			_ = iter.Close()
			return nil, err
		}

		key := decodeKey(iter.Key())
		if s.scanned != nil {
			s.scanned(key)
		}
		v, err := decodeValue(iter.Value())
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable record during sweep")
			continue
		}
		if v.LastActiveAt.Before(cutoff) {
			candidates = append(candidates, key)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return candidates, nil
}

// deleteChunk removes the candidates that are still inactive
func (s *Store) deleteChunk(keys []string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	var staged int64
	for _, key := range keys {
		v, err := s.get(key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Skipping unreadable record during sweep")
			continue
		}
		if !v.LastActiveAt.Before(cutoff) {
			continue
		}
		if err := batch.Delete(encodeKey(key), nil); err != nil {
			return 0, fmt.Errorf("failed to stage delete: %w", err)
		}
		staged++
	}

	if staged == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete inactive keys: %w", err)
	}
	return staged, nil
}

// Stat returns the record metadata without refreshing activity
func (s *Store) Stat(_ context.Context, key string) (storage.Record, error) {
	if err := s.lock(); err != nil {
		return storage.Record{}, err
	}
	defer s.mu.Unlock()

	v, err := s.get(key)
	if err != nil {
		return storage.Record{}, err
	}
	rec := v.toRecord(key)
	rec.Value = ""
	return rec, nil
}

// Ping reports whether the store is open
func (s *Store) Ping(context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return nil
}

// Close flushes and closes the database once any running sweep finishes
func (s *Store) Close() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info().Str("dir", s.dir).Msg("Closing pebble store")
	return s.db.Close()
}

// ensureDirectory ensures a directory exists
func ensureDirectory(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}
	return nil
}
