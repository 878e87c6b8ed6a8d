package keystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/storage"
	"github.com/kvdb/kvdb/internal/tracing"
)

// Operation names used in logs, spans and metrics
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
	OpStat   = "stat"
)

// Metadata describes a key without its value
type Metadata struct {
	Key          string    `json:"name"`
	ReadOnly     bool      `json:"read_only"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func metadataOf(rec storage.Record) Metadata {
	return Metadata{
		Key:          rec.Key,
		ReadOnly:     rec.ReadOnly,
		CreatedAt:    rec.CreatedAt,
		LastActiveAt: rec.LastActiveAt,
	}
}

// Accessor implements create, read, update and delete on top of a
// storage.Table. Each operation is one table transaction; reads and writes
// refresh the key's activity timestamp inside that transaction.
type Accessor struct {
	table   storage.Table
	limits  Limits
	now     func() time.Time
	newKey  func() string
	metrics *metrics.KeyStoreMetrics
	tracer  trace.Tracer
	log     zerolog.Logger
}

// Option configures an Accessor
type Option func(*Accessor)

// WithClock overrides the time source used for activity timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) {
		a.now = now
	}
}

// WithKeyGenerator overrides how keys are generated when Create gets none
func WithKeyGenerator(newKey func() string) Option {
	return func(a *Accessor) {
		a.newKey = newKey
	}
}

// WithMetrics attaches operation metrics
func WithMetrics(m *metrics.KeyStoreMetrics) Option {
	return func(a *Accessor) {
		a.metrics = m
	}
}

// NewAccessor creates an accessor over table
func NewAccessor(table storage.Table, limits Limits, opts ...Option) (*Accessor, error) {
	if table == nil {
		return nil, fmt.Errorf("accessor requires a table")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	a := &Accessor{
		table:  table,
		limits: limits,
		now:    time.Now,
		newKey: func() string { return uuid.NewString() },
		tracer: otel.Tracer(tracing.TracerKeyStore),
		log:    logger.WithComponent("keystore"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Limits returns the configured size limits
func (a *Accessor) Limits() Limits {
	return a.limits
}

// Create stores a new key. An empty key is replaced by a random UUID. Sizes
// and the key name are checked before any storage access. The returned
// metadata carries the key actually stored.
func (a *Accessor) Create(ctx context.Context, key, value string, readOnly bool) (meta Metadata, err error) {
	if key == "" {
		key = a.generateKey()
	}

	start := time.Now()
	ctx, span := a.startSpan(ctx, OpCreate, key)
	span.SetAttributes(
		attribute.Bool(tracing.AttrReadOnly, readOnly),
		attribute.Int(tracing.AttrValueSize, len(value)),
	)
	defer func() { a.finish(span, OpCreate, key, start, err) }()

	if err := a.limits.CheckKey(key); err != nil {
		return Metadata{}, err
	}
	if err := a.limits.CheckValue(value); err != nil {
		return Metadata{}, err
	}
	a.metrics.RecordValueSize(OpCreate, len(value))

	now := a.timestamp()
	rec := storage.Record{
		Key:          key,
		Value:        value,
		ReadOnly:     readOnly,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	// A transaction that has started runs to completion even if the caller
	// goes away.
	if err := a.table.Insert(context.WithoutCancel(ctx), rec); err != nil {
		return Metadata{}, translate(OpCreate, key, err)
	}
	return metadataOf(rec), nil
}

// Read returns the key's value and refreshes its activity
func (a *Accessor) Read(ctx context.Context, key string) (value string, err error) {
	start := time.Now()
	ctx, span := a.startSpan(ctx, OpRead, key)
	defer func() { a.finish(span, OpRead, key, start, err) }()

	if err := a.limits.CheckKey(key); err != nil {
		return "", err
	}

	rec, err := a.table.ReadAndTouch(context.WithoutCancel(ctx), key, a.timestamp())
	if err != nil {
		return "", translate(OpRead, key, err)
	}
	return rec.Value, nil
}

// Update replaces the key's value and refreshes its activity. Read-only keys
// fail with ReadOnlyError.
func (a *Accessor) Update(ctx context.Context, key, value string) (meta Metadata, err error) {
	start := time.Now()
	ctx, span := a.startSpan(ctx, OpUpdate, key)
	span.SetAttributes(attribute.Int(tracing.AttrValueSize, len(value)))
	defer func() { a.finish(span, OpUpdate, key, start, err) }()

	if err := a.limits.CheckKey(key); err != nil {
		return Metadata{}, err
	}
	if err := a.limits.CheckValue(value); err != nil {
		return Metadata{}, err
	}
	a.metrics.RecordValueSize(OpUpdate, len(value))

	rec, err := a.table.UpdateValue(context.WithoutCancel(ctx), key, value, a.timestamp())
	if err != nil {
		return Metadata{}, translate(OpUpdate, key, err)
	}
	return metadataOf(rec), nil
}

// Delete removes the key, read-only or not
func (a *Accessor) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	ctx, span := a.startSpan(ctx, OpDelete, key)
	defer func() { a.finish(span, OpDelete, key, start, err) }()

	if err := a.limits.CheckKey(key); err != nil {
		return err
	}

	if err := a.table.Delete(context.WithoutCancel(ctx), key); err != nil {
		return translate(OpDelete, key, err)
	}
	return nil
}

// Stat returns the key's metadata. It does not count as activity.
func (a *Accessor) Stat(ctx context.Context, key string) (meta Metadata, err error) {
	start := time.Now()
	ctx, span := a.startSpan(ctx, OpStat, key)
	defer func() { a.finish(span, OpStat, key, start, err) }()

	if err := a.limits.CheckKey(key); err != nil {
		return Metadata{}, err
	}

	rec, err := a.table.Stat(ctx, key)
	if err != nil {
		return Metadata{}, translate(OpStat, key, err)
	}
	return metadataOf(rec), nil
}

// Ping checks that the table is reachable
func (a *Accessor) Ping(ctx context.Context) error {
	if err := a.table.Ping(ctx); err != nil {
		return StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (a *Accessor) generateKey() string {
	key := a.newKey()
	if len(key) > a.limits.MaxKeyLength {
		key = key[:a.limits.MaxKeyLength]
	}
	return key
}

func (a *Accessor) finish(span trace.Span, op, key string, start time.Time, err error) {
	duration := time.Since(start)
	kind := errorKind(err)
	a.metrics.RecordOperation(op, kind, duration)
	endSpan(span, err)

	if err == nil {
		return
	}
	if errors.Is(err, ErrStorageFailure) {
		a.log.Error().
			Err(err).
			Str("operation", op).
			Str("key", key).
			Dur("duration", duration).
			Msg("Key store operation failed")
		return
	}
	a.log.Debug().
		Err(err).
		Str("operation", op).
		Str("key", key).
		Str("kind", kind).
		Msg("Key store operation rejected")
}

// translate maps storage sentinels to key store errors
func translate(op, key string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return KeyNotFoundError{Key: key}
	case errors.Is(err, storage.ErrExists):
		return KeyExistsError{Key: key}
	case errors.Is(err, storage.ErrReadOnly):
		return ReadOnlyError{Key: key}
	default:
		return StorageError{Op: op, Err: err}
	}
}

// timestamp is the current time at the resolution every backend stores
func (a *Accessor) timestamp() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}
