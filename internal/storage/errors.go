package storage

import "errors"

var (
	// ErrNotFound indicates no record exists for the key
	ErrNotFound = errors.New("record not found")

	// ErrExists indicates a record already exists for the key
	ErrExists = errors.New("record already exists")

	// ErrReadOnly indicates the record cannot be modified
	ErrReadOnly = errors.New("record is read-only")

	// ErrClosed indicates the table has been closed
	ErrClosed = errors.New("table is closed")
)
