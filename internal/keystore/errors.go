package keystore

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these with
// errors.Is.
var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyAlreadyExists  = errors.New("key already exists")
	ErrReadOnlyViolation = errors.New("key is read-only")
	ErrKeyTooLong        = errors.New("key too long")
	ErrValueTooLong      = errors.New("value too long")
	ErrInvalidKey        = errors.New("invalid key")
	ErrStorageFailure    = errors.New("storage failure")
)

// KeyNotFoundError indicates a key was not found
type KeyNotFoundError struct {
	Key string
}

func (e KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

func (e KeyNotFoundError) Is(target error) bool { return target == ErrKeyNotFound }

// KeyExistsError indicates a create collided with an existing key
type KeyExistsError struct {
	Key string
}

func (e KeyExistsError) Error() string {
	return fmt.Sprintf("key %q already exists", e.Key)
}

func (e KeyExistsError) Is(target error) bool { return target == ErrKeyAlreadyExists }

// ReadOnlyError indicates an update of a read-only key
type ReadOnlyError struct {
	Key string
}

func (e ReadOnlyError) Error() string {
	return fmt.Sprintf("key %q is read-only", e.Key)
}

func (e ReadOnlyError) Is(target error) bool { return target == ErrReadOnlyViolation }

// KeyTooLongError indicates a key longer than the configured maximum
type KeyTooLongError struct {
	Length int
	Max    int
}

func (e KeyTooLongError) Error() string {
	return fmt.Sprintf("key is %d bytes, maximum is %d", e.Length, e.Max)
}

func (e KeyTooLongError) Is(target error) bool { return target == ErrKeyTooLong }

// ValueTooLongError indicates a value longer than the configured maximum
type ValueTooLongError struct {
	Length int
	Max    int
}

func (e ValueTooLongError) Error() string {
	return fmt.Sprintf("value is %d bytes, maximum is %d", e.Length, e.Max)
}

func (e ValueTooLongError) Is(target error) bool { return target == ErrValueTooLong }

// InvalidKeyError indicates an invalid key was provided
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %q: %s", e.Key, e.Reason)
}

func (e InvalidKeyError) Is(target error) bool { return target == ErrInvalidKey }

// StorageError wraps a failure of the underlying table
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

func (e StorageError) Is(target error) bool { return target == ErrStorageFailure }

// errorKind is the metrics label for an operation outcome
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrKeyNotFound):
		return "not_found"
	case errors.Is(err, ErrKeyAlreadyExists):
		return "exists"
	case errors.Is(err, ErrReadOnlyViolation):
		return "read_only"
	case errors.Is(err, ErrKeyTooLong):
		return "key_too_long"
	case errors.Is(err, ErrValueTooLong):
		return "value_too_long"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	default:
		return "storage_error"
	}
}
