package storage

import (
	"context"
	"time"
)

// Record is one stored key with its activity timestamps
type Record struct {
	Key          string
	Value        string
	ReadOnly     bool
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Table is the durable key table. Every method is atomic with respect to the
// record it touches; activity refreshes are monotonic, so LastActiveAt never
// moves backwards even when callers pass an older now.
type Table interface {
	// Insert stores a new record or fails with ErrExists
	Insert(ctx context.Context, rec Record) error

	// ReadAndTouch returns the record and refreshes its activity in the same
	// transaction, or fails with ErrNotFound
	ReadAndTouch(ctx context.Context, key string, now time.Time) (Record, error)

	// UpdateValue replaces the value and refreshes activity. It fails with
	// ErrNotFound or ErrReadOnly.
	UpdateValue(ctx context.Context, key, value string, now time.Time) (Record, error)

	// Delete removes the record regardless of its read-only flag, or fails
	// with ErrNotFound
	Delete(ctx context.Context, key string) error

	// DeleteInactiveBefore removes every record whose LastActiveAt is strictly
	// before cutoff and returns how many were removed
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stat returns the record without its value and without refreshing activity
	Stat(ctx context.Context, key string) (Record, error)

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases the backing store
	Close() error
}

// Later returns the later of stored and now, used for monotonic refreshes
func Later(stored, now time.Time) time.Time {
	if now.After(stored) {
		return now
	}
	return stored
}
