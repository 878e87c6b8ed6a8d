package sqlstore

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/kvdb/kvdb/internal/storage"
)

// TableName is the SQL table holding all keys
const TableName = "keys"

type recordModel struct {
	Key          string    `gorm:"column:key;primaryKey;type:text"`
	Value        string    `gorm:"column:value;type:text;not null"`
	ReadOnly     bool      `gorm:"column:read_only;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	LastActiveAt time.Time `gorm:"column:last_active_at;not null;index:idx_keys_last_active_at"`
}

func (recordModel) TableName() string {
	return TableName
}

func fromRecord(rec storage.Record) recordModel {
	return recordModel{
		Key:          rec.Key,
		Value:        rec.Value,
		ReadOnly:     rec.ReadOnly,
		CreatedAt:    dbTime(rec.CreatedAt),
		LastActiveAt: dbTime(rec.LastActiveAt),
	}
}

func (m recordModel) toRecord() storage.Record {
	return storage.Record{
		Key:          m.Key,
		Value:        m.Value,
		ReadOnly:     m.ReadOnly,
		CreatedAt:    m.CreatedAt.UTC(),
		LastActiveAt: m.LastActiveAt.UTC(),
	}
}

// dbTime normalizes a timestamp to UTC at microsecond precision, the
// resolution PostgreSQL keeps. SQLite stores text, which then sorts correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// "key" is a keyword in SQLite, so conditions go through clause builders,
// which quote column names.
func byKey(key string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func inactiveBefore(cutoff time.Time) clause.Expression {
	return clause.Lt{Column: clause.Column{Name: "last_active_at"}, Value: dbTime(cutoff)}
}
