package options

import "time"

const (
	// MinHashBits is the smallest top-level hash table tdbgo will create:
	// 1<<6 = 64 buckets, enough for the group size below to hold a handful
	// of keys before the first sublevel promotion.
	MinHashBits uint = 6

	// MaxHashBits bounds expansion so the top-level table offset array
	// never exceeds a sane in-memory/mmap footprint.
	MaxHashBits uint = 32

	// DefaultHashBits is the initial top-level hash table size for a
	// freshly created database: 1<<10 = 1024 buckets.
	DefaultHashBits uint = 10

	// DefaultGroupBits sizes a top-level probing group at 1<<3 = 8
	// entries, a reasonable default fan-out before sublevel promotion.
	DefaultGroupBits uint = 3

	// DefaultSublevelBits sizes a newly promoted sublevel at 1<<DefaultGroupBits
	// entries as well, so a promoted group's fan-out matches its parent's.
	DefaultSublevelBits uint = 3

	// DefaultGrowthFactor is the default Options.GrowthFactor, equal to
	// internal/fileio.GrowthFactor: new_size = requested_size * 1.25.
	DefaultGrowthFactor float64 = 1.25

	// DefaultFreeTableCount is how many free tables are rotated between
	// to spread lock contention.
	DefaultFreeTableCount = 4

	// MaxFreeTableCount bounds the above to keep the header's free-list
	// head array a fixed, small size.
	MaxFreeTableCount = 32

	// BucketSpacing is the number of free-list buckets per power of two
	// of region size.
	BucketSpacing = 4

	// DefaultLockWaitTimeout is no timeout: blocking acquisitions wait
	// indefinitely, retrying on EINTR.
	DefaultLockWaitTimeout time.Duration = 0
)

// defaultOptions holds the default configuration settings for a freshly
// opened database.
var defaultOptions = Options{
	HashBits:        DefaultHashBits,
	GroupBits:       DefaultGroupBits,
	SublevelBits:    DefaultSublevelBits,
	GrowthFactor:    DefaultGrowthFactor,
	FreeTableCount:  DefaultFreeTableCount,
	BucketSpacing:   BucketSpacing,
	LockWaitTimeout: DefaultLockWaitTimeout,
	SeqnumEnabled:   false,
	NoSync:          false,
}
