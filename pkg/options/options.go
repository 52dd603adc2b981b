// Package options provides the size and layout bounds that govern
// tdbgo's on-file structures: initial hash-table sizing, top-level group
// size, free-table bucket spacing, and file growth policy. pkg/attrs
// layers the caller-facing open attributes (HASH, SEED, ...) on top of
// the defaults defined here.
package options

import (
	"time"
)

// Options holds the configuration parameters for an open database.
type Options struct {
	// HashBits is the log2 size of the top-level hash table
	// (1 << HashBits entries). The top-level table keeps this size for
	// the life of the file; a full group grows by sublevel promotion.
	HashBits uint

	// GroupBits is the log2 size of a top-level probing group. A group
	// that fills without an empty slot triggers sublevel promotion.
	GroupBits uint

	// SublevelBits is the log2 size of a newly allocated sublevel hash
	// table.
	SublevelBits uint

	// GrowthFactor is a file growth multiplier. Open does not consult it:
	// file growth always uses internal/fileio.GrowthFactor (1.25), giving
	// new_size = requested_size*1.25.
	GrowthFactor float64

	// FreeTableCount is the number of independent free tables rotated
	// between to spread lock contention.
	FreeTableCount int

	// BucketSpacing is the number of free-list buckets per power of two
	// of region size.
	BucketSpacing int

	// LockWaitTimeout bounds how long a blocking lock acquisition will
	// wait before failing with LOCK; Open uses it when the FLOCK attribute
	// supplies no timeout of its own. Zero means wait indefinitely
	// (subject to EINTR retry).
	LockWaitTimeout time.Duration

	// SeqnumEnabled controls whether the header's sequence number is
	// incremented on every modifying operation.
	SeqnumEnabled bool

	// NoSync is a skip-fsync-on-commit switch that no code path consults:
	// commits always fsync.
	NoSync bool
}

// OptionFunc mutates an Options value in place.
type OptionFunc func(*Options)

// NewDefaultOptions returns the default Options used by Open when the
// caller supplies no attrs.TDB1HashSize / sizing overrides.
func NewDefaultOptions() Options {
	return defaultOptions
}

// WithDefaultOptions resets every field to its default value.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithHashBits overrides the initial top-level hash-table size, clamped to
// [MinHashBits, MaxHashBits].
func WithHashBits(bits uint) OptionFunc {
	return func(o *Options) {
		if bits >= MinHashBits && bits <= MaxHashBits {
			o.HashBits = bits
		}
	}
}

// WithGrowthFactor overrides the file growth multiplier, rejecting factors
// that would not guarantee amortized O(N) growth.
func WithGrowthFactor(factor float64) OptionFunc {
	return func(o *Options) {
		if factor > 1.0 {
			o.GrowthFactor = factor
		}
	}
}

// WithFreeTableCount overrides how many free tables are rotated between.
func WithFreeTableCount(n int) OptionFunc {
	return func(o *Options) {
		if n >= 1 && n <= MaxFreeTableCount {
			o.FreeTableCount = n
		}
	}
}

// WithLockWaitTimeout sets the default blocking-lock timeout.
func WithLockWaitTimeout(d time.Duration) OptionFunc {
	return func(o *Options) {
		if d >= 0 {
			o.LockWaitTimeout = d
		}
	}
}

// WithSeqnum toggles the header sequence counter.
func WithSeqnum(enabled bool) OptionFunc {
	return func(o *Options) {
		o.SeqnumEnabled = enabled
	}
}

// WithNoSync sets the NoSync field, which commits do not consult.
func WithNoSync(noSync bool) OptionFunc {
	return func(o *Options) {
		o.NoSync = noSync
	}
}
