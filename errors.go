package duracache

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cache's error kinds. Callers should use
// errors.Is against these, since wrapped forms carry the offending key or
// path in their message.
var (
	// ErrKeyValidation is returned when a key is empty or exceeds the
	// maximum key length.
	ErrKeyValidation = errors.New("duracache: invalid key")

	// ErrTypeValidation names the error kind for a value that is not a
	// valid instance of the cache's bound record type. No Cache method
	// returns it: Cache[T] accepts only values of type T, so a value of
	// another type is rejected at compile time.
	ErrTypeValidation = errors.New("duracache: invalid value type")

	// ErrMissingSchemaVersion is returned at construction when the
	// configured record type reports an empty schema version.
	ErrMissingSchemaVersion = errors.New("duracache: record type has no schema version")

	// ErrEvictionImpossible is returned when a single item's encoded
	// size exceeds the disk tier's max_disk_size_bytes limit, so no
	// amount of eviction could ever make room for it.
	ErrEvictionImpossible = errors.New("duracache: item exceeds max disk size")

	// ErrClosed is returned by any public method invoked after Close.
	ErrClosed = errors.New("duracache: cache is closed")
)

// maxKeyLength is the maximum number of UTF-8 code units (bytes, since Go
// strings are already interpreted as byte sequences by len()) a key may
// contain.
const maxKeyLength = 256

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrKeyValidation)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key length %d exceeds %d", ErrKeyValidation, len(key), maxKeyLength)
	}
	return nil
}
