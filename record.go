package duracache

// Record is the capability a value must expose to be stored in a Cache.
// A Cache is parameterized over exactly one concrete type satisfying this
// interface; the canonical byte form returned by Encode is both what is
// written to the persistent store and what size accounting is based on.
type Record interface {
	// SchemaVersion identifies the structural version of the type. The
	// cache reads this once, at construction, from a caller-supplied
	// sample value and rejects any stored row whose recorded version
	// differs.
	SchemaVersion() string

	// Encode returns the canonical byte encoding of the value. Two
	// values that are Go-equal must Encode to the same bytes.
	Encode() ([]byte, error)
}

// Decoder reconstructs a Record of type T from its canonical encoding, as
// produced by T's Encode method. It is supplied once at construction and
// invoked on every disk hit that is not already resident in memory.
type Decoder[T Record] func(data []byte) (T, error)
