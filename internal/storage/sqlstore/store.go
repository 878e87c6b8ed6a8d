package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/storage"
)

// Dialects supported by the store
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Config configures a SQL store
type Config struct {
	// Dialect is DialectPostgres or DialectSQLite
	Dialect string

	// DSN is a PostgreSQL connection string or a SQLite file path
	DSN string

	// MaxOpenConns bounds the connection pool. SQLite always uses one.
	MaxOpenConns int

	// QueryTimeout bounds each transaction; zero means no bound
	QueryTimeout time.Duration

	// SlowThreshold marks statements logged as slow
	SlowThreshold time.Duration
}

// Store implements storage.Table on top of gorm
type Store struct {
	db           *gorm.DB
	sqlDB        *sql.DB
	dialect      string
	queryTimeout time.Duration
	log          zerolog.Logger
}

var _ storage.Table = (*Store)(nil)

// Open connects to the database and migrates the keys table
func Open(ctx context.Context, cfg Config) (*Store, error) {
	log := logger.WithComponent("sqlstore")

	var dialector gorm.Dialector
	maxOpen := cfg.MaxOpenConns
	switch cfg.Dialect {
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
		maxOpen = 1
	default:
		return nil, fmt.Errorf("unsupported SQL dialect: %q", cfg.Dialect)
	}
	if maxOpen < 1 {
		maxOpen = 1
	}

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(log, slow),
		NowFunc:                func() time.Time { return dbTime(time.Now()) },
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)

	s := &Store{
		db:           db,
		sqlDB:        sqlDB,
		dialect:      cfg.Dialect,
		queryTimeout: cfg.QueryTimeout,
		log:          log,
	}

	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info().
		Str("dialect", cfg.Dialect).
		Int("max_open_conns", maxOpen).
		Msg("SQL store opened")

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if s.dialect == DialectSQLite {
		if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return fmt.Errorf("failed to set busy timeout: %w", err)
		}
		// In-memory databases report "memory" and keep working
		if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if err := db.AutoMigrate(&recordModel{}); err != nil {
		return fmt.Errorf("failed to migrate %s table: %w", TableName, err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return context.WithCancel(ctx)
}

// lockRow takes a row lock on PostgreSQL. SQLite serializes writers on its
// single connection instead.
func (s *Store) lockRow(tx *gorm.DB) *gorm.DB {
	if s.dialect == DialectPostgres {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Insert stores a new record or fails with storage.ErrExists
func (s *Store) Insert(ctx context.Context, rec storage.Record) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m := fromRecord(rec)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return storage.ErrExists
		}
		return fmt.Errorf("failed to insert key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrExists
	}
	return nil
}

// ReadAndTouch returns the record and refreshes its activity in one transaction
func (s *Store) ReadAndTouch(ctx context.Context, key string, now time.Time) (storage.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec storage.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.takeForUpdate(tx, key)
		if err != nil {
			return err
		}
		if err := s.touch(tx, &m, now, nil); err != nil {
			return err
		}
		rec = m.toRecord()
		return nil
	})
	if err != nil {
		return storage.Record{}, s.wrap("read key", err)
	}
	return rec, nil
}

// UpdateValue replaces the value of a writable record and refreshes activity
func (s *Store) UpdateValue(ctx context.Context, key, value string, now time.Time) (storage.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec storage.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.takeForUpdate(tx, key)
		if err != nil {
			return err
		}
		if m.ReadOnly {
			return storage.ErrReadOnly
		}
		if err := s.touch(tx, &m, now, &value); err != nil {
			return err
		}
		rec = m.toRecord()
		return nil
	})
	if err != nil {
		return storage.Record{}, s.wrap("update key", err)
	}
	return rec, nil
}

func (s *Store) takeForUpdate(tx *gorm.DB, key string) (recordModel, error) {
	var m recordModel
	if err := s.lockRow(tx).Where(byKey(key)).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return recordModel{}, storage.ErrNotFound
		}
		return recordModel{}, err
	}
	return m, nil
}

// touch advances last_active_at to now unless it is already later, and
// replaces the value when one is given.
func (s *Store) touch(tx *gorm.DB, m *recordModel, now time.Time, value *string) error {
	updates := map[string]interface{}{}

	active := storage.Later(m.LastActiveAt, dbTime(now))
	if active.After(m.LastActiveAt) {
		updates["last_active_at"] = active
	}
	if value != nil {
		updates["value"] = *value
	}
	if len(updates) == 0 {
		return nil
	}

	if err := tx.Model(&recordModel{}).Where(byKey(m.Key)).Updates(updates).Error; err != nil {
		return err
	}
	m.LastActiveAt = active
	if value != nil {
		m.Value = *value
	}
	return nil
}

// Delete removes the record or fails with storage.ErrNotFound
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Where(byKey(key)).Delete(&recordModel{})
	if res.Error != nil {
		return s.wrap("delete key", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteInactiveBefore removes all records inactive since before cutoff. It is
// one statement, so under READ COMMITTED PostgreSQL re-checks the predicate on
// rows a concurrent read just refreshed.
func (s *Store) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Where(inactiveBefore(cutoff)).Delete(&recordModel{})
	if res.Error != nil {
		return 0, s.wrap("delete inactive keys", res.Error)
	}
	return res.RowsAffected, nil
}

// Stat returns the record metadata without refreshing activity
func (s *Store) Stat(ctx context.Context, key string) (storage.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var m recordModel
	err := s.db.WithContext(ctx).
		Select("key", "read_only", "created_at", "last_active_at").
		Where(byKey(key)).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.Record{}, storage.ErrNotFound
		}
		return storage.Record{}, s.wrap("stat key", err)
	}
	return m.toRecord(), nil
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.db.WithContext(ctx).Model(&recordModel{}).Count(&n).Error; err != nil {
		return 0, s.wrap("count keys", err)
	}
	return n, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.log.Info().Msg("Closing SQL store")
	return s.sqlDB.Close()
}

// wrap passes storage sentinels through and annotates everything else
func (s *Store) wrap(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrExists),
		errors.Is(err, storage.ErrReadOnly):
		return err
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
