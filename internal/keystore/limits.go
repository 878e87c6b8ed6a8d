package keystore

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Default size limits, in bytes
const (
	DefaultMaxKeyLength   = 256
	DefaultMaxValueLength = 1024 * 1024
)

// Limits bounds key and value sizes in bytes
type Limits struct {
	MaxKeyLength   int
	MaxValueLength int
}

// DefaultLimits returns the default limits
func DefaultLimits() Limits {
	return Limits{
		MaxKeyLength:   DefaultMaxKeyLength,
		MaxValueLength: DefaultMaxValueLength,
	}
}

// Validate checks that both limits are positive
func (l Limits) Validate() error {
	if l.MaxKeyLength < 1 {
		return fmt.Errorf("max key length must be positive, got %d", l.MaxKeyLength)
	}
	if l.MaxValueLength < 1 {
		return fmt.Errorf("max value length must be positive, got %d", l.MaxValueLength)
	}
	return nil
}

// CheckKey validates a key name. Length is checked first, so an oversized key
// reports KeyTooLongError whatever it contains. A key is a non-empty run of
// Unicode letters, digits, '_', '-' and '.'.
func (l Limits) CheckKey(key string) error {
	if len(key) > l.MaxKeyLength {
		return KeyTooLongError{Length: len(key), Max: l.MaxKeyLength}
	}
	if key == "" {
		return InvalidKeyError{Key: key, Reason: "key cannot be empty"}
	}
	if !utf8.ValidString(key) {
		return InvalidKeyError{Key: key, Reason: "key is not valid UTF-8"}
	}
	for _, r := range key {
		if !isKeyRune(r) {
			return InvalidKeyError{Key: key, Reason: fmt.Sprintf("character %q is not allowed", r)}
		}
	}
	return nil
}

// CheckValue validates a value's size
func (l Limits) CheckValue(value string) error {
	if len(value) > l.MaxValueLength {
		return ValueTooLongError{Length: len(value), Max: l.MaxValueLength}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch r {
	case '_', '-', '.':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
